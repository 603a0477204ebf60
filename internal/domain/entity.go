package domain

import (
	"sort"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
)

// EntityKind 实体种类
type EntityKind string

const (
	KindBase        EntityKind = "base"
	KindSplit       EntityKind = "split"
	KindDexMetadata EntityKind = "dex_metadata"
	KindModule      EntityKind = "module"
)

// AppEntity 一个可安装单元。变体集合是封闭的：
// *BaseEntity、*SplitEntity、*DexMetadataEntity、*ModuleEntity。
type AppEntity interface {
	PackageName() string
	Name() string
	Data() datasource.DataSource
	// TargetSDK / MinSDK 为空表示缺失
	TargetSDK() string
	MinSDK() string
	Arch() Architecture
	Size() int64
	SourceType() DataType
	Kind() EntityKind

	appEntity()
}

// EntityInfo 各变体共有的属性
type EntityInfo struct {
	Package       string
	Source        datasource.DataSource
	TargetSdk     string
	MinSdk        string
	Architecture  Architecture
	ContainerType DataType
}

func (e EntityInfo) PackageName() string         { return e.Package }
func (e EntityInfo) Data() datasource.DataSource { return e.Source }
func (e EntityInfo) TargetSDK() string           { return e.TargetSdk }
func (e EntityInfo) MinSDK() string              { return e.MinSdk }
func (e EntityInfo) Arch() Architecture          { return e.Architecture }
func (e EntityInfo) SourceType() DataType        { return e.ContainerType }

// Size 由数据来源推导
func (e EntityInfo) Size() int64 {
	if e.Source == nil {
		return 0
	}
	return e.Source.Size()
}

// BaseEntity 主 APK
type BaseEntity struct {
	EntityInfo
	SharedUserID  string
	VersionCode   int64
	VersionName   string
	Label         string
	Icon          string
	Permissions   []string
	SignatureHash string
	ContentHash   string
}

func (e *BaseEntity) Name() string {
	return "base.apk"
}

func (e *BaseEntity) Kind() EntityKind { return KindBase }
func (e *BaseEntity) appEntity()       {}

// SplitType 分包的分组类别，用于界面分组
type SplitType string

const (
	SplitTypeFeature  SplitType = "FEATURE"
	SplitTypeABI      SplitType = "ABI"
	SplitTypeDensity  SplitType = "DENSITY"
	SplitTypeLanguage SplitType = "LANGUAGE"
)

// FilterType 分包的过滤类别，用于选择策略
type FilterType string

const (
	FilterNone     FilterType = "NONE"
	FilterABI      FilterType = "ABI"
	FilterDensity  FilterType = "DENSITY"
	FilterLanguage FilterType = "LANGUAGE"
)

// SplitEntity 分包
type SplitEntity struct {
	EntityInfo
	SplitName   string
	Type        SplitType
	Filter      FilterType
	ConfigValue string
}

func (e *SplitEntity) Name() string {
	return e.SplitName + ".apk"
}

func (e *SplitEntity) Kind() EntityKind { return KindSplit }
func (e *SplitEntity) appEntity()       {}

// DexMetadataEntity .dm 文件
type DexMetadataEntity struct {
	EntityInfo
	DMName string
}

func (e *DexMetadataEntity) Name() string {
	return e.DMName + ".dm"
}

func (e *DexMetadataEntity) Kind() EntityKind { return KindDexMetadata }
func (e *DexMetadataEntity) appEntity()       {}

// ModuleEntity root 模块，包名即模块 id
type ModuleEntity struct {
	EntityInfo
	ID          string
	ModuleName  string
	Version     string
	VersionCode int64
	Author      string
	Description string
}

func (e *ModuleEntity) Name() string {
	return e.ModuleName
}

func (e *ModuleEntity) Kind() EntityKind { return KindModule }
func (e *ModuleEntity) appEntity()       {}

// Bases 取出所有主 APK
func Bases(entities []AppEntity) []*BaseEntity {
	var bases []*BaseEntity
	for _, e := range entities {
		if b, ok := e.(*BaseEntity); ok {
			bases = append(bases, b)
		}
	}
	return bases
}

// LatestBase 版本号降序、版本名降序排列后的第一个主 APK
func LatestBase(entities []AppEntity) *BaseEntity {
	bases := Bases(entities)
	if len(bases) == 0 {
		return nil
	}
	sort.SliceStable(bases, func(i, j int) bool {
		return newerThan(bases[i], bases[j])
	})
	return bases[0]
}
