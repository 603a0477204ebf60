// Package selection 计算一个包的实体中哪些应当默认选中。
package selection

import (
	"sort"

	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/splitmeta"
)

// Select 按以下顺序应用规则，不会失败：
//  1. 混合模块容器：全部不选，由用户主动勾选
//  2. 多 APK 会话中同一包名有多个主 APK：只选最佳主 APK
//  3. 只有一个分包：视为用户明确指定，强制选中
//  4. 默认：主 APK、dm、模块全选，分包按设备能力过滤（splitChooseAll 时全选）
func Select(entities []domain.AppEntity, containerType domain.DataType, profile device.Profile, splitChooseAll bool) []domain.SelectableEntity {
	out := make([]domain.SelectableEntity, len(entities))
	for i, e := range entities {
		out[i] = domain.SelectableEntity{Entity: e}
	}

	if containerType.IsMixedModule() {
		return out
	}

	if bases := domain.Bases(entities); len(bases) > 1 && containerType.IsMultiAPK() {
		best := BestBase(bases, profile)
		for i := range out {
			out[i].Selected = out[i].Entity == domain.AppEntity(best)
		}
		return out
	}

	if len(entities) == 1 && entities[0].Kind() == domain.KindSplit {
		out[0].Selected = true
		return out
	}

	var splits []*domain.SplitEntity
	for _, e := range entities {
		if s, ok := e.(*domain.SplitEntity); ok {
			splits = append(splits, s)
		}
	}
	optimal := OptimalSplits(splits, profile)

	for i, e := range entities {
		switch v := e.(type) {
		case *domain.SplitEntity:
			out[i].Selected = splitChooseAll || optimal[v]
		default:
			out[i].Selected = true
		}
	}
	return out
}

// BestBase 按设备 ABI 偏好、版本号降序、版本名降序排序后取第一个
func BestBase(bases []*domain.BaseEntity, profile device.Profile) *domain.BaseEntity {
	if len(bases) == 0 {
		return nil
	}

	archs := profile.Architectures()
	abiIndex := func(a domain.Architecture) int {
		for i, arch := range archs {
			if arch == a {
				return i
			}
		}
		return len(archs)
	}

	sorted := append([]*domain.BaseEntity(nil), bases...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ai, bi := abiIndex(a.Arch()), abiIndex(b.Arch()); ai != bi {
			return ai < bi
		}
		if a.VersionCode != b.VersionCode {
			return a.VersionCode > b.VersionCode
		}
		return a.VersionName > b.VersionName
	})
	return sorted[0]
}

// OptimalSplits 返回应当选中的分包。
// 每个 ABI、密度类别只选设备偏好中第一个可用的值；语言先取精确匹配，
// 没有时退化为一个主语言相同的候选；不受设备约束的分包总是保留。
func OptimalSplits(splits []*domain.SplitEntity, profile device.Profile) map[*domain.SplitEntity]bool {
	available := make(map[domain.FilterType][]string)
	for _, s := range splits {
		if s.Filter != domain.FilterNone {
			available[s.Filter] = append(available[s.Filter], s.ConfigValue)
		}
	}

	var deviceABIs []string
	for _, a := range profile.Architectures() {
		deviceABIs = append(deviceABIs, string(a))
	}

	targets := map[domain.FilterType]map[string]bool{
		domain.FilterABI:      firstPresent(deviceABIs, available[domain.FilterABI]),
		domain.FilterDensity:  firstPresent(profile.Densities, available[domain.FilterDensity]),
		domain.FilterLanguage: matchLanguages(profile.Locales, available[domain.FilterLanguage]),
	}

	selected := make(map[*domain.SplitEntity]bool, len(splits))
	for _, s := range splits {
		if s.Filter == domain.FilterNone || targets[s.Filter][s.ConfigValue] {
			selected[s] = true
		}
	}
	return selected
}

func firstPresent(preferred, available []string) map[string]bool {
	set := make(map[string]bool, len(available))
	for _, v := range available {
		set[v] = true
	}
	for _, p := range preferred {
		if set[p] {
			return map[string]bool{p: true}
		}
	}
	return nil
}

// matchLanguages 语言分包的匹配。
// 精确匹配时选中全部命中的值；否则依次用设备语言的主语言寻找第一个候选，只选一个。
func matchLanguages(locales, available []string) map[string]bool {
	if len(available) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(locales))
	for _, l := range locales {
		wanted[splitmeta.NormalizeLocale(l)] = true
	}

	exact := make(map[string]bool)
	for _, v := range available {
		if wanted[splitmeta.NormalizeLocale(v)] {
			exact[v] = true
		}
	}
	if len(exact) > 0 {
		return exact
	}

	for _, l := range locales {
		primary := splitmeta.PrimaryLanguage(l)
		for _, v := range available {
			if splitmeta.PrimaryLanguage(v) == primary {
				return map[string]bool{v: true}
			}
		}
	}
	return nil
}
