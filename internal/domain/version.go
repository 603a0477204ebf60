package domain

import (
	"strings"

	"github.com/hashicorp/go-version"
)

// VersionRelation 待安装版本相对已安装版本的关系
type VersionRelation string

const (
	VersionNewer VersionRelation = "newer"
	VersionSame  VersionRelation = "same"
	VersionOlder VersionRelation = "older"
)

// CompareVersionNames 比较两个版本名，能按语义版本解析时按数值比较（1.10 > 1.9），
// 否则退化为字符串比较
func CompareVersionNames(a, b string) int {
	if a == b {
		return 0
	}
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}

// RelationToInstalled 版本号决定升降级，版本号相同时再比较版本名。
// 未安装或没有主 APK 时返回空
func RelationToInstalled(base *BaseEntity, installed *InstalledAppInfo) VersionRelation {
	if base == nil || installed == nil {
		return ""
	}
	cmp := 0
	switch {
	case base.VersionCode > installed.VersionCode:
		cmp = 1
	case base.VersionCode < installed.VersionCode:
		cmp = -1
	default:
		cmp = CompareVersionNames(base.VersionName, installed.VersionName)
	}
	switch {
	case cmp > 0:
		return VersionNewer
	case cmp < 0:
		return VersionOlder
	default:
		return VersionSame
	}
}

// newerThan 版本号降序，其次版本名按字符串降序
func newerThan(a, b *BaseEntity) bool {
	if a.VersionCode != b.VersionCode {
		return a.VersionCode > b.VersionCode
	}
	return a.VersionName > b.VersionName
}
