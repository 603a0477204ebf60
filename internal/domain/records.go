package domain

import "time"

// AnalysisStatus 分析记录状态
type AnalysisStatus string

const (
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusEmpty     AnalysisStatus = "empty"     // 没有可安装的内容
	AnalysisStatusCancelled AnalysisStatus = "cancelled"
)

// AnalysisRecord 一次分析调用的持久化记录
type AnalysisRecord struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID     string         `gorm:"type:varchar(36);index:idx_session_id" json:"session_id"`
	Status        AnalysisStatus `gorm:"type:varchar(20);not null" json:"status"`
	SessionMode   SessionMode    `gorm:"type:varchar(20)" json:"session_mode,omitempty"`
	ContainerType DataType       `gorm:"type:varchar(30)" json:"container_type,omitempty"`
	SourceCount   int            `gorm:"default:0" json:"source_count"`
	PackageCount  int            `gorm:"default:0" json:"package_count"`
	EntityCount   int            `gorm:"default:0" json:"entity_count"`
	SelectedCount int            `gorm:"default:0" json:"selected_count"`
	SourcesJSON   string         `gorm:"type:text" json:"sources_json,omitempty"`
	ResultJSON    string         `gorm:"type:mediumtext" json:"result_json,omitempty"`
	CacheDir      string         `gorm:"type:varchar(500)" json:"cache_dir,omitempty"`
	DurationMs    int64          `gorm:"default:0" json:"duration_ms"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_created_at" json:"created_at"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// InstalledPackage 已安装包的快照，没有设备连接时作为已安装信息的来源
type InstalledPackage struct {
	PackageName   string    `gorm:"primaryKey;type:varchar(255)" json:"package_name"`
	Label         string    `gorm:"type:varchar(255)" json:"label,omitempty"`
	VersionCode   int64     `gorm:"default:0" json:"version_code"`
	VersionName   string    `gorm:"type:varchar(100)" json:"version_name,omitempty"`
	MinSdk        int       `gorm:"default:0" json:"min_sdk,omitempty"`
	TargetSdk     int       `gorm:"default:0" json:"target_sdk,omitempty"`
	SignatureHash string    `gorm:"type:varchar(128)" json:"signature_hash,omitempty"`
	IsSystemApp   bool      `gorm:"default:false" json:"is_system_app"`
	IsArchived    bool      `gorm:"default:false" json:"is_archived"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (InstalledPackage) TableName() string {
	return "installed_packages"
}

// ToAppInfo 转换为分析使用的已安装信息
func (p *InstalledPackage) ToAppInfo() *InstalledAppInfo {
	label := p.Label
	if label == "" {
		label = p.PackageName
	}
	return &InstalledAppInfo{
		PackageName:   p.PackageName,
		Label:         label,
		VersionCode:   p.VersionCode,
		VersionName:   p.VersionName,
		MinSdk:        p.MinSdk,
		TargetSdk:     p.TargetSdk,
		SignatureHash: p.SignatureHash,
		IsSystemApp:   p.IsSystemApp,
		IsArchived:    p.IsArchived,
	}
}
