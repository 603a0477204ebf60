package installed

import (
	"strings"

	"github.com/mozillazg/go-pinyin"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// labelKeys 应用名的检索键：原文、全拼、拼音首字母
func labelKeys(label string) []string {
	keys := []string{strings.ToLower(label)}

	var han []rune
	for _, r := range label {
		if r >= 0x4e00 && r <= 0x9fff {
			han = append(han, r)
		}
	}
	if len(han) == 0 {
		return keys
	}

	syllables := pinyin.LazyPinyin(string(han), pinyin.NewArgs())
	var full, initials strings.Builder
	for _, s := range syllables {
		if s == "" {
			continue
		}
		full.WriteString(s)
		initials.WriteByte(s[0])
	}
	return append(keys, full.String(), initials.String())
}

// MatchLabel 按包名、应用名、拼音或拼音首字母匹配，如 "wx" 可以命中 "微信"
func MatchLabel(pkg *domain.InstalledPackage, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(pkg.PackageName), query) {
		return true
	}
	for _, key := range labelKeys(pkg.Label) {
		if key != "" && strings.Contains(key, query) {
			return true
		}
	}
	return false
}

// Filter 过滤出匹配查询的快照
func Filter(packages []*domain.InstalledPackage, query string) []*domain.InstalledPackage {
	out := make([]*domain.InstalledPackage, 0)
	for _, p := range packages {
		if MatchLabel(p, query) {
			out = append(out, p)
		}
	}
	return out
}
