package device

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

type fakeProps map[string]string

func (f fakeProps) GetProp(ctx context.Context, key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", errors.New("no such property")
	}
	return v, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestFromConfig 测试静态配置
func TestFromConfig(t *testing.T) {
	p := FromConfig(StaticConfig{ABIs: []string{"x86_64", "x86"}, DensityDPI: 320, Locales: []string{"zh-CN"}})

	assert.Equal(t, []string{"x86_64", "x86"}, p.ABIs)
	assert.Equal(t, "xhdpi", p.Densities[0])
	assert.Equal(t, []string{"zh-CN"}, p.Locales)
	assert.True(t, p.IsX86())
	assert.False(t, p.IsARM())
}

// TestFromConfig_Defaults 测试缺省值
func TestFromConfig_Defaults(t *testing.T) {
	p := FromConfig(StaticConfig{})
	assert.Equal(t, domain.ArchARM64, p.PrimaryArch())
	assert.NotEmpty(t, p.Densities)
	assert.Equal(t, []string{"en-US"}, p.Locales)
}

// TestFromADB 测试从设备属性读取
func TestFromADB(t *testing.T) {
	props := fakeProps{
		"ro.product.cpu.abilist": "arm64-v8a,armeabi-v7a,armeabi",
		"ro.sf.lcd_density":      "480",
		"persist.sys.locale":     "zh-CN",
	}

	p, err := FromADB(context.Background(), props, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"arm64-v8a", "armeabi-v7a", "armeabi"}, p.ABIs)
	assert.Equal(t, "xxhdpi", p.Densities[0])
	assert.Equal(t, []string{"zh-CN"}, p.Locales)
}

// TestFromADB_Fallbacks 测试老设备属性回退
func TestFromADB_Fallbacks(t *testing.T) {
	props := fakeProps{
		"ro.product.cpu.abilist": "",
		"ro.product.cpu.abi":     "armeabi-v7a",
		"ro.product.locale":      "en-GB",
	}

	p, err := FromADB(context.Background(), props, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"armeabi-v7a"}, p.ABIs)
	assert.Equal(t, "mdpi", p.Densities[0])
	assert.Equal(t, []string{"en-GB"}, p.Locales)
}
