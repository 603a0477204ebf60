package domain

import "github.com/apk-analysis/apk-intake-go/internal/datasource"

// EntityView 实体的序列化视图
type EntityView struct {
	Kind          EntityKind `json:"kind" yaml:"kind"`
	PackageName   string     `json:"package_name" yaml:"package_name"`
	Name          string     `json:"name" yaml:"name"`
	Path          string     `json:"path" yaml:"path"`
	Origin        string     `json:"origin,omitempty" yaml:"origin,omitempty"`
	Size          int64      `json:"size" yaml:"size"`
	TargetSdk     string     `json:"target_sdk,omitempty" yaml:"target_sdk,omitempty"`
	MinSdk        string     `json:"min_sdk,omitempty" yaml:"min_sdk,omitempty"`
	Architecture  string     `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	ContainerType DataType   `json:"container_type" yaml:"container_type"`
	Selected      bool       `json:"selected" yaml:"selected"`

	VersionCode   int64    `json:"version_code,omitempty" yaml:"version_code,omitempty"`
	VersionName   string   `json:"version_name,omitempty" yaml:"version_name,omitempty"`
	Label         string   `json:"label,omitempty" yaml:"label,omitempty"`
	SharedUserID  string   `json:"shared_user_id,omitempty" yaml:"shared_user_id,omitempty"`
	Icon          string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	Permissions   []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	SignatureHash string   `json:"signature_hash,omitempty" yaml:"signature_hash,omitempty"`
	ContentHash   string   `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`

	SplitName   string     `json:"split_name,omitempty" yaml:"split_name,omitempty"`
	SplitType   SplitType  `json:"split_type,omitempty" yaml:"split_type,omitempty"`
	FilterType  FilterType `json:"filter_type,omitempty" yaml:"filter_type,omitempty"`
	ConfigValue string     `json:"config_value,omitempty" yaml:"config_value,omitempty"`

	ModuleID    string `json:"module_id,omitempty" yaml:"module_id,omitempty"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ResultView 分析结果的序列化视图
type ResultView struct {
	PackageName          string               `json:"package_name" yaml:"package_name"`
	SessionMode          SessionMode          `json:"session_mode" yaml:"session_mode"`
	ContainerType        DataType             `json:"container_type" yaml:"container_type"`
	Entities             []EntityView         `json:"entities" yaml:"entities"`
	SeedColor            *int                 `json:"seed_color,omitempty" yaml:"seed_color,omitempty"`
	InstalledAppInfo     *InstalledAppInfo    `json:"installed_app_info,omitempty" yaml:"installed_app_info,omitempty"`
	SignatureMatchStatus SignatureMatchStatus `json:"signature_match_status" yaml:"signature_match_status"`
	VersionRelation      VersionRelation      `json:"version_relation,omitempty" yaml:"version_relation,omitempty"`
	IsFromSingleFile     bool                 `json:"is_from_single_file" yaml:"is_from_single_file"`
}

// NewEntityView 把实体展开为视图
func NewEntityView(e AppEntity, selected bool) EntityView {
	v := EntityView{
		Kind:          e.Kind(),
		PackageName:   e.PackageName(),
		Name:          e.Name(),
		Size:          e.Size(),
		TargetSdk:     e.TargetSDK(),
		MinSdk:        e.MinSDK(),
		Architecture:  string(e.Arch()),
		ContainerType: e.SourceType(),
		Selected:      selected,
	}
	if data := e.Data(); data != nil {
		v.Path = data.String()
		if origin := datasource.Origin(data); origin != data {
			v.Origin = origin.String()
		}
	}

	switch t := e.(type) {
	case *BaseEntity:
		v.VersionCode = t.VersionCode
		v.VersionName = t.VersionName
		v.Label = t.Label
		v.SharedUserID = t.SharedUserID
		v.Icon = t.Icon
		v.Permissions = t.Permissions
		v.SignatureHash = t.SignatureHash
		v.ContentHash = t.ContentHash
	case *SplitEntity:
		v.SplitName = t.SplitName
		v.SplitType = t.Type
		v.FilterType = t.Filter
		v.ConfigValue = t.ConfigValue
	case *ModuleEntity:
		v.ModuleID = t.ID
		v.VersionCode = t.VersionCode
		v.VersionName = t.Version
		v.Author = t.Author
		v.Description = t.Description
	}
	return v
}

// NewResultView 把分析结果展开为视图
func NewResultView(r PackageAnalysisResult) ResultView {
	entities := make([]EntityView, 0, len(r.Entities))
	for _, se := range r.Entities {
		entities = append(entities, NewEntityView(se.Entity, se.Selected))
	}
	return ResultView{
		PackageName:          r.PackageName,
		SessionMode:          r.SessionMode,
		ContainerType:        r.ContainerType,
		Entities:             entities,
		SeedColor:            r.SeedColor,
		InstalledAppInfo:     r.InstalledAppInfo,
		SignatureMatchStatus: r.SignatureMatchStatus,
		VersionRelation:      r.VersionRelation,
		IsFromSingleFile:     r.IsFromSingleFile,
	}
}

// NewResultViews 批量转换
func NewResultViews(results []PackageAnalysisResult) []ResultView {
	views := make([]ResultView, 0, len(results))
	for _, r := range results {
		views = append(views, NewResultView(r))
	}
	return views
}
