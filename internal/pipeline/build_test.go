package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

type fakeProps map[string]string

func (p fakeProps) GetProp(_ context.Context, key string) (string, error) {
	return p[key], nil
}

func TestResolveProfile(t *testing.T) {
	cfg := config.Defaults()
	cfg.Device.ABIs = []string{"x86_64"}
	cfg.Device.Locales = []string{"de-DE"}

	profile, err := ResolveProfile(context.Background(), cfg, nil, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"x86_64"}, profile.ABIs)
	assert.Equal(t, []string{"de-DE"}, profile.Locales)

	cfg.Device.Source = "adb"
	_, err = ResolveProfile(context.Background(), cfg, nil, quietLogger())
	assert.Error(t, err)

	profile, err = ResolveProfile(context.Background(), cfg, fakeProps{
		"ro.product.cpu.abilist": "arm64-v8a,armeabi-v7a",
	}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"arm64-v8a", "armeabi-v7a"}, profile.ABIs)

	cfg.Device.Source = "usb"
	_, err = ResolveProfile(context.Background(), cfg, nil, quietLogger())
	assert.Error(t, err)
}

func TestBuild_UnknownSourceYieldsNothing(t *testing.T) {
	cfg := config.Defaults()
	a := Build(cfg, nil, quietLogger())
	require.NotNil(t, a)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	results, err := a.Analyse(context.Background(), cfg.AnalysisDefaults(), cfg.StaticProfile(),
		[]datasource.DataSource{datasource.NewFile(path)},
		domain.AnalyseExtra{CacheDirectory: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, results)
}
