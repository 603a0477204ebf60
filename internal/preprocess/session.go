package preprocess

import (
	"strings"

	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// SessionTypeInfo 会话级别的分类
type SessionTypeInfo struct {
	Mode             domain.SessionMode
	ContainerType    domain.DataType
	IsFromSingleFile bool
}

// DetermineSessionType 多个包名，或单个包名下有多个主 APK 时为批量会话。
// 混合模块容器始终视为单会话。
func DetermineSessionType(groups []ProcessedGroup) SessionTypeInfo {
	var first domain.AppEntity
	for _, g := range groups {
		if len(g.Entities) > 0 {
			first = g.Entities[0]
			break
		}
	}
	if first == nil {
		return SessionTypeInfo{Mode: domain.SessionModeSingle, ContainerType: domain.DataTypeAPK}
	}

	firstType := first.SourceType()
	batch := len(groups) > 1 || (len(groups) == 1 && len(domain.Bases(groups[0].Entities)) > 1)
	if firstType.IsMixedModule() {
		batch = false
	}

	info := SessionTypeInfo{
		Mode:             domain.SessionModeSingle,
		ContainerType:    firstType,
		IsFromSingleFile: fromSingleFile(groups),
	}
	if batch {
		info.Mode = domain.SessionModeBatch
		if firstType == domain.DataTypeMultiAPKZip {
			info.ContainerType = domain.DataTypeMultiAPKZip
		} else {
			info.ContainerType = domain.DataTypeMultiAPK
		}
	}
	return info
}

func fromSingleFile(groups []ProcessedGroup) bool {
	var key string
	for _, g := range groups {
		for _, e := range g.Entities {
			k := containerKey(e.Data())
			if key == "" {
				key = k
				continue
			}
			if k != key {
				return false
			}
		}
	}
	return key != ""
}

// containerKey 实体所在的最外层文件
func containerKey(ds datasource.DataSource) string {
	switch v := ds.(type) {
	case nil:
		return ""
	case *datasource.ZipEntryInFile:
		return containerKey(v.Parent)
	case *datasource.File:
		if entry, ok := v.Source().(*datasource.ZipEntryInFile); ok {
			return containerKey(entry.Parent)
		}
		if v.Source() != nil {
			return datasource.Origin(v).String()
		}
		return v.Path
	default:
		return datasource.Origin(v).String()
	}
}

// CheckSignature 对比待安装主 APK 和已安装版本的签名证书指纹
func CheckSignature(base *domain.BaseEntity, installed *domain.InstalledAppInfo) domain.SignatureMatchStatus {
	if installed == nil {
		return domain.SignatureNotInstalled
	}
	if base == nil {
		return domain.SignatureUnknownError
	}
	got, want := strings.TrimSpace(base.SignatureHash), strings.TrimSpace(installed.SignatureHash)
	if got == "" || want == "" {
		return domain.SignatureUnknownError
	}
	if got == want {
		return domain.SignatureMatch
	}
	return domain.SignatureMismatch
}
