package domain

import "sort"

// Density 屏幕密度档位
type Density struct {
	Key string
	DPI int
}

// 按 DPI 升序
var densities = []Density{
	{Key: "ldpi", DPI: 120},
	{Key: "mdpi", DPI: 160},
	{Key: "tvdpi", DPI: 213},
	{Key: "hdpi", DPI: 240},
	{Key: "xhdpi", DPI: 320},
	{Key: "xxhdpi", DPI: 480},
	{Key: "xxxhdpi", DPI: 640},
}

// DensityKeys 所有已知档位
func DensityKeys() []string {
	keys := make([]string, len(densities))
	for i, d := range densities {
		keys[i] = d.Key
	}
	return keys
}

// IsDensityKey 是否为已知档位
func IsDensityKey(key string) bool {
	for _, d := range densities {
		if d.Key == key {
			return true
		}
	}
	return false
}

// PrioritizedDensities 根据设备 DPI 生成优先级列表：
// 先是不低于设备 DPI 的档位（由近到远），再是低于设备 DPI 的档位（由近到远）
func PrioritizedDensities(dpi int) []string {
	var higher, lower []Density
	for _, d := range densities {
		if d.DPI >= dpi {
			higher = append(higher, d)
		} else {
			lower = append(lower, d)
		}
	}
	sort.SliceStable(higher, func(i, j int) bool { return higher[i].DPI < higher[j].DPI })
	sort.SliceStable(lower, func(i, j int) bool { return lower[i].DPI > lower[j].DPI })

	keys := make([]string, 0, len(densities))
	for _, d := range higher {
		keys = append(keys, d.Key)
	}
	for _, d := range lower {
		keys = append(keys, d.Key)
	}
	return keys
}
