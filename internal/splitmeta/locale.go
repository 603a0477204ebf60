package splitmeta

import "strings"

// 已废弃的 ISO 639 代码
var legacyLanguages = map[string]string{
	"in": "id",
	"iw": "he",
	"ji": "yi",
}

// NormalizeLocale 统一为小写、连字符分隔，并替换已废弃的主语言代码
func NormalizeLocale(tag string) string {
	tag = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", "-"))
	primary, rest, hasRest := strings.Cut(tag, "-")
	if mapped, ok := legacyLanguages[primary]; ok {
		primary = mapped
	}
	if hasRest {
		return primary + "-" + rest
	}
	return primary
}

// PrimaryLanguage 地区分隔符之前的主语言
func PrimaryLanguage(tag string) string {
	primary, _, _ := strings.Cut(NormalizeLocale(tag), "-")
	return primary
}
