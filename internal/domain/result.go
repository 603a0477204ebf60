package domain

// InstalledAppInfo 设备上已安装版本的信息
type InstalledAppInfo struct {
	PackageName   string `json:"package_name"`
	Label         string `json:"label"`
	VersionCode   int64  `json:"version_code"`
	VersionName   string `json:"version_name"`
	MinSdk        int    `json:"min_sdk,omitempty"`
	TargetSdk     int    `json:"target_sdk,omitempty"`
	SignatureHash string `json:"signature_hash,omitempty"`
	IsSystemApp   bool   `json:"is_system_app"`
	IsArchived    bool   `json:"is_archived"`
}

// SelectableEntity 选择策略的输出单元
type SelectableEntity struct {
	Entity   AppEntity
	Selected bool
}

// PackageAnalysisResult 单个包的最终分析结果
type PackageAnalysisResult struct {
	PackageName          string
	SessionMode          SessionMode
	ContainerType        DataType
	Entities             []SelectableEntity
	SeedColor            *int
	InstalledAppInfo     *InstalledAppInfo
	SignatureMatchStatus SignatureMatchStatus
	VersionRelation      VersionRelation
	// IsFromSingleFile 本次调用的所有实体来自同一个文件
	IsFromSingleFile bool
}

// SelectedEntities 被选中的实体
func (r *PackageAnalysisResult) SelectedEntities() []AppEntity {
	var out []AppEntity
	for _, se := range r.Entities {
		if se.Selected {
			out = append(out, se.Entity)
		}
	}
	return out
}

// SelectedBase 被选中的主 APK，没有则取第一个主 APK
func (r *PackageAnalysisResult) SelectedBase() *BaseEntity {
	var first *BaseEntity
	for _, se := range r.Entities {
		b, ok := se.Entity.(*BaseEntity)
		if !ok {
			continue
		}
		if se.Selected {
			return b
		}
		if first == nil {
			first = b
		}
	}
	return first
}
