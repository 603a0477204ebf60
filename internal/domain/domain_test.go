package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseArchitecture 测试 ABI 名称解析
func TestParseArchitecture(t *testing.T) {
	tests := []struct {
		input string
		want  Architecture
		ok    bool
	}{
		{"arm64-v8a", ArchARM64, true},
		{"arm64_v8a", ArchARM64, true},
		{"armeabi_v7a", ArchARMv7, true},
		{"x86_64", ArchX86_64, true},
		{"X86", ArchX86, true},
		{"mips64", ArchMIPS64, true},
		{"riscv64", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseArchitecture(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestPrioritizedDensities 测试密度优先级：先不低于设备的档位，再低于设备的档位
func TestPrioritizedDensities(t *testing.T) {
	assert.Equal(t,
		[]string{"xxhdpi", "xxxhdpi", "xhdpi", "hdpi", "tvdpi", "mdpi", "ldpi"},
		PrioritizedDensities(440))
	assert.Equal(t,
		[]string{"xhdpi", "xxhdpi", "xxxhdpi", "hdpi", "tvdpi", "mdpi", "ldpi"},
		PrioritizedDensities(320))
}

// TestDataTypePredicates 测试容器格式判断
func TestDataTypePredicates(t *testing.T) {
	assert.True(t, DataTypeMixedModuleAPK.IsMixedModule())
	assert.False(t, DataTypeModuleZip.IsMixedModule())
	assert.True(t, DataTypeMultiAPKZip.IsMultiAPK())
	assert.False(t, DataTypeNone.IsKnown())
	assert.False(t, DataType("").IsKnown())
	assert.Equal(t, DataTypeXAPK, ParseDataType("xapk"))
	assert.Equal(t, DataTypeNone, ParseDataType("tarball"))
}

// TestLatestBase 测试按版本号和版本名取最新主 APK
func TestLatestBase(t *testing.T) {
	old := &BaseEntity{EntityInfo: EntityInfo{Package: "com.x"}, VersionCode: 1, VersionName: "1.0"}
	newer := &BaseEntity{EntityInfo: EntityInfo{Package: "com.x"}, VersionCode: 2, VersionName: "2.0"}
	newerName := &BaseEntity{EntityInfo: EntityInfo{Package: "com.x"}, VersionCode: 2, VersionName: "2.1"}
	split := &SplitEntity{EntityInfo: EntityInfo{Package: "com.x"}, SplitName: "config.en"}

	assert.Same(t, newerName, LatestBase([]AppEntity{old, split, newer, newerName}))
	assert.Nil(t, LatestBase([]AppEntity{split}))

	nine := &BaseEntity{EntityInfo: EntityInfo{Package: "com.x"}, VersionCode: 5, VersionName: "1.9"}
	ten := &BaseEntity{EntityInfo: EntityInfo{Package: "com.x"}, VersionCode: 5, VersionName: "1.10"}
	assert.Same(t, nine, LatestBase([]AppEntity{ten, nine}))
}

// TestRelationToInstalled 测试与已安装版本的比较
func TestRelationToInstalled(t *testing.T) {
	base := &BaseEntity{VersionCode: 5, VersionName: "1.10"}
	tests := []struct {
		installed *InstalledAppInfo
		want      VersionRelation
	}{
		{nil, ""},
		{&InstalledAppInfo{VersionCode: 4, VersionName: "9.9"}, VersionNewer},
		{&InstalledAppInfo{VersionCode: 6, VersionName: "1.0"}, VersionOlder},
		{&InstalledAppInfo{VersionCode: 5, VersionName: "1.9"}, VersionNewer},
		{&InstalledAppInfo{VersionCode: 5, VersionName: "1.10.0"}, VersionSame},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RelationToInstalled(base, tt.installed))
	}
	assert.Equal(t, VersionRelation(""), RelationToInstalled(nil, &InstalledAppInfo{}))
}

func TestCompareVersionNames(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.10", "1.9", 1},
		{"2.0.0", "2.0", 0},
		{"1.0-beta", "1.0", -1},
		{"nightly", "nightly", 0},
		{"b-build", "a-build", 1},
		{"", "1.0", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersionNames(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

// TestResultView 测试结果视图
func TestResultView(t *testing.T) {
	base := &BaseEntity{EntityInfo: EntityInfo{Package: "com.x", ContainerType: DataTypeAPK}, VersionCode: 3, Label: "X"}
	split := &SplitEntity{
		EntityInfo:  EntityInfo{Package: "com.x", ContainerType: DataTypeAPK},
		SplitName:   "config.xhdpi",
		Type:        SplitTypeDensity,
		Filter:      FilterDensity,
		ConfigValue: "xhdpi",
	}
	result := PackageAnalysisResult{
		PackageName:          "com.x",
		SessionMode:          SessionModeSingle,
		Entities:             []SelectableEntity{{Entity: base, Selected: true}, {Entity: split, Selected: false}},
		SignatureMatchStatus: SignatureNotInstalled,
		IsFromSingleFile:     true,
	}

	view := NewResultView(result)
	assert.True(t, view.IsFromSingleFile)
	assert.Empty(t, view.VersionRelation)
	assert.Len(t, view.Entities, 2)
	assert.Equal(t, KindBase, view.Entities[0].Kind)
	assert.Equal(t, "X", view.Entities[0].Label)
	assert.Equal(t, "config.xhdpi.apk", view.Entities[1].Name)
	assert.Equal(t, FilterDensity, view.Entities[1].FilterType)
	assert.Same(t, base, result.SelectedBase())
	assert.Len(t, result.SelectedEntities(), 1)
}
