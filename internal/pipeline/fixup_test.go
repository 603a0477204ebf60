package pipeline

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// TestFixup_InheritsFromNewestBase 测试同包多个主 APK 时分包从最新的主 APK 补全 SDK
func TestFixup_InheritsFromNewestBase(t *testing.T) {
	old := &domain.BaseEntity{EntityInfo: domain.EntityInfo{Package: "com.x", MinSdk: "21", TargetSdk: "30"}, VersionCode: 1}
	newer := &domain.BaseEntity{EntityInfo: domain.EntityInfo{Package: "com.x", MinSdk: "26", TargetSdk: "34"}, VersionCode: 2}
	split := &domain.SplitEntity{EntityInfo: domain.EntityInfo{Package: "com.x"}, SplitName: "config.en"}
	dm := &domain.DexMetadataEntity{EntityInfo: domain.EntityInfo{Package: "com.x"}, DMName: "base"}

	out := fixup([]domain.AppEntity{old, split, newer, dm}, logrus.NewEntry(quietLogger()))
	require.Len(t, out, 4)

	assert.Equal(t, "34", out[1].TargetSDK())
	assert.Equal(t, "26", out[1].MinSDK())
	assert.Equal(t, "34", out[3].TargetSDK())
	assert.Empty(t, split.TargetSdk)
}

// TestFixup_OrphanDexMetadataWithTwoPackages 测试有多个主包时丢弃无包名的 dm
func TestFixup_OrphanDexMetadataWithTwoPackages(t *testing.T) {
	a := &domain.BaseEntity{EntityInfo: domain.EntityInfo{Package: "com.a"}}
	b := &domain.BaseEntity{EntityInfo: domain.EntityInfo{Package: "com.b"}}
	dm := &domain.DexMetadataEntity{EntityInfo: domain.EntityInfo{Source: touch(t, t.TempDir(), "base.dm")}, DMName: "base"}

	out := fixup([]domain.AppEntity{a, b, dm}, logrus.NewEntry(quietLogger()))
	assert.Equal(t, []domain.AppEntity{a, b}, out)
}
