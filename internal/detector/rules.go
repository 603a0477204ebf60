package detector

import (
	"path"
	"strings"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// archiveStats 判断容器格式所需的压缩包信息
type archiveStats struct {
	Names        map[string]bool
	HasManifest  bool // 根目录下的 AndroidManifest.xml
	HasModule    bool // module.prop 或 common/module.prop
	NestedAPKs   int
	HasTOC       bool // toc.pb
	HasBaseSplit bool // base.apk 或 base-master*.apk
	XAPKManifest map[string]bool
	APKMInfo     map[string]bool
}

// formatRule 容器格式规则，按顺序匹配，第一条命中的规则决定格式
type formatRule struct {
	Name  string
	Type  domain.DataType
	Match func(s *archiveStats) bool
}

var moduleRules = []formatRule{
	{
		Name:  "module with embedded apk",
		Type:  domain.DataTypeMixedModuleAPK,
		Match: func(s *archiveStats) bool { return s.HasModule && s.HasManifest },
	},
	{
		Name:  "module bundling apks",
		Type:  domain.DataTypeMixedModuleZip,
		Match: func(s *archiveStats) bool { return s.HasModule && s.NestedAPKs > 0 },
	},
	{
		Name:  "module",
		Type:  domain.DataTypeModuleZip,
		Match: func(s *archiveStats) bool { return s.HasModule },
	},
}

var standardRules = []formatRule{
	{
		Name: "xapk manifest",
		Type: domain.DataTypeXAPK,
		Match: func(s *archiveStats) bool {
			m := s.XAPKManifest
			return m["package_name"] && m["version_code"] && (m["split_apks"] || m["expansions"])
		},
	},
	{
		Name: "apkm info",
		Type: domain.DataTypeAPKM,
		Match: func(s *archiveStats) bool {
			return s.APKMInfo["pname"] && s.APKMInfo["versioncode"]
		},
	},
	{
		Name:  "android manifest",
		Type:  domain.DataTypeAPK,
		Match: func(s *archiveStats) bool { return s.HasManifest },
	},
	{
		Name:  "apks layout",
		Type:  domain.DataTypeAPKS,
		Match: func(s *archiveStats) bool { return s.HasTOC || s.HasBaseSplit },
	},
	{
		Name:  "multiple apks",
		Type:  domain.DataTypeMultiAPKZip,
		Match: func(s *archiveStats) bool { return s.NestedAPKs > 0 },
	},
}

func (s *archiveStats) add(name string) {
	s.Names[name] = true
	base := path.Base(name)

	switch {
	case name == "AndroidManifest.xml":
		s.HasManifest = true
	case name == "module.prop" || name == "common/module.prop":
		s.HasModule = true
	case name == "toc.pb":
		s.HasTOC = true
	}

	if strings.HasSuffix(strings.ToLower(name), ".apk") {
		s.NestedAPKs++
		lower := strings.ToLower(base)
		if lower == "base.apk" || strings.HasPrefix(lower, "base-master") {
			s.HasBaseSplit = true
		}
	}
}
