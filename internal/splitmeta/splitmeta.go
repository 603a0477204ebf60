// Package splitmeta 根据分包文件名推断分包的类别和配置值。
package splitmeta

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

const (
	basePrefix        = "base-"
	splitPrefix       = "split-"
	splitConfigPrefix = "split_config."
	configPrefix      = "config."
	configInfix       = ".config."
)

var namedDensities = map[string]bool{
	"ldpi":    true,
	"mdpi":    true,
	"hdpi":    true,
	"xhdpi":   true,
	"xxhdpi":  true,
	"xxxhdpi": true,
	"tvdpi":   true,
	"nodpi":   true,
	"anydpi":  true,
}

// Metadata 分包元数据
type Metadata struct {
	Type        domain.SplitType
	Filter      domain.FilterType
	ConfigValue string
}

// Parse 解析分包名（可带 .apk 后缀）
//
//	config.arm64_v8a          -> ABI / ABI / arm64-v8a
//	split_config.xxhdpi       -> DENSITY / DENSITY / xxhdpi
//	config.zh-cn              -> LANGUAGE / LANGUAGE / zh-cn
//	feature_map.config.x86    -> FEATURE / ABI / x86
//	feature_map               -> FEATURE / NONE / ""
func Parse(splitName string) Metadata {
	qualifier := strings.TrimSuffix(splitName, ".apk")
	likelyFeature := true

	switch {
	case strings.HasPrefix(qualifier, splitConfigPrefix):
		qualifier = strings.TrimPrefix(qualifier, splitConfigPrefix)
		likelyFeature = false
	case strings.HasPrefix(qualifier, configPrefix):
		qualifier = strings.TrimPrefix(qualifier, configPrefix)
		likelyFeature = false
	default:
		qualifier = strings.TrimPrefix(qualifier, basePrefix)
		qualifier = strings.TrimPrefix(qualifier, splitPrefix)
	}

	config := qualifier
	hasInfix := strings.Contains(qualifier, configInfix)
	if hasInfix {
		config = qualifier[strings.LastIndex(qualifier, configInfix)+len(configInfix):]
	}

	groupAs := func(t domain.SplitType) domain.SplitType {
		if likelyFeature && hasInfix {
			return domain.SplitTypeFeature
		}
		return t
	}

	if arch, ok := domain.ParseArchitecture(config); ok {
		return Metadata{Type: groupAs(domain.SplitTypeABI), Filter: domain.FilterABI, ConfigValue: string(arch)}
	}
	if arch, ok := domain.ParseArchitecture(strings.ReplaceAll(config, "_", "-")); ok {
		return Metadata{Type: groupAs(domain.SplitTypeABI), Filter: domain.FilterABI, ConfigValue: string(arch)}
	}

	if IsDensity(config) {
		return Metadata{Type: groupAs(domain.SplitTypeDensity), Filter: domain.FilterDensity, ConfigValue: config}
	}

	if IsLanguage(config) {
		return Metadata{Type: groupAs(domain.SplitTypeLanguage), Filter: domain.FilterLanguage, ConfigValue: config}
	}

	return Metadata{Type: domain.SplitTypeFeature, Filter: domain.FilterNone}
}

// IsDensity 已知的密度限定符，或 <数字>dpi
func IsDensity(s string) bool {
	if namedDensities[s] {
		return true
	}
	digits, ok := strings.CutSuffix(s, "dpi")
	if !ok || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsLanguage 严格校验语言代码，避免把普通的功能名误判为语言。
// 只接受有 ISO 639-1 两字母形式的主语言，ads、map、pay 这类三字母代码视为功能名
func IsLanguage(code string) bool {
	if code == "" || len(code) > 8 || strings.ContainsAny(code, "._") {
		return false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return false
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return false
	}
	// 规范形式在存在两字母代码时总是两字母
	return len(base.String()) == 2
}
