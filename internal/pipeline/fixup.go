package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// fixup 按每个包最新的主 APK 补全分包和 dm 缺失的 SDK 信息，并把无包名的 dm 归到唯一的主包下。
// 需要修改的实体会被复制，原实体保持不变。
func fixup(entities []domain.AppEntity, log *logrus.Entry) []domain.AppEntity {
	byPackage := make(map[string][]domain.AppEntity)
	var order []string
	for _, b := range domain.Bases(entities) {
		if _, ok := byPackage[b.Package]; !ok {
			order = append(order, b.Package)
		}
		byPackage[b.Package] = append(byPackage[b.Package], b)
	}
	bases := make(map[string]*domain.BaseEntity, len(order))
	for _, pkg := range order {
		bases[pkg] = domain.LatestBase(byPackage[pkg])
	}

	out := make([]domain.AppEntity, 0, len(entities))
	for _, e := range entities {
		switch v := e.(type) {
		case *domain.SplitEntity:
			if base, ok := bases[v.Package]; ok && needsSDK(v.EntityInfo) {
				c := *v
				inheritSDK(&c.EntityInfo, base)
				e = &c
			}
		case *domain.DexMetadataEntity:
			c := *v
			if c.Package == "" {
				if len(order) != 1 {
					log.WithField("source", v.Data().String()).Warn("Dropping dex metadata without a unique base package")
					continue
				}
				c.Package = order[0]
			}
			if base, ok := bases[c.Package]; ok {
				inheritSDK(&c.EntityInfo, base)
			}
			e = &c
		}
		out = append(out, e)
	}
	return out
}

func needsSDK(info domain.EntityInfo) bool {
	return info.TargetSdk == "" || info.MinSdk == ""
}

func inheritSDK(info *domain.EntityInfo, base *domain.BaseEntity) {
	if info.TargetSdk == "" {
		info.TargetSdk = base.TargetSdk
	}
	if info.MinSdk == "" {
		info.MinSdk = base.MinSdk
	}
}
