// Package device 描述目标设备的能力：ABI、屏幕密度、语言偏好。
package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

// Profile 设备能力，列表均按偏好顺序排列
type Profile struct {
	ABIs      []string `json:"abis" yaml:"abis"`
	Densities []string `json:"densities" yaml:"densities"`
	Locales   []string `json:"locales" yaml:"locales"`
}

// DefaultProfile 常见的 64 位 ARM 手机
func DefaultProfile() Profile {
	return Profile{
		ABIs:      []string{string(domain.ArchARM64), string(domain.ArchARMv7), string(domain.ArchARM)},
		Densities: domain.PrioritizedDensities(420),
		Locales:   []string{"en-US"},
	}
}

// Architectures 设备支持的 ABI（忽略无法识别的值）
func (p Profile) Architectures() []domain.Architecture {
	var out []domain.Architecture
	for _, abi := range p.ABIs {
		if a, ok := domain.ParseArchitecture(abi); ok {
			out = append(out, a)
		}
	}
	return out
}

// PrimaryArch 首选 ABI
func (p Profile) PrimaryArch() domain.Architecture {
	archs := p.Architectures()
	if len(archs) == 0 {
		return domain.ArchUnknown
	}
	return archs[0]
}

// IsARM 首选 ABI 属于 ARM 系列
func (p Profile) IsARM() bool {
	return p.PrimaryArch().IsARM()
}

// IsX86 首选 ABI 属于 x86 系列
func (p Profile) IsX86() bool {
	return p.PrimaryArch().IsX86()
}

// StaticConfig 配置文件中的设备描述
type StaticConfig struct {
	ABIs       []string
	Densities  []string
	DensityDPI int
	Locales    []string
}

// FromConfig 根据静态配置生成能力描述，缺省项使用 DefaultProfile
func FromConfig(cfg StaticConfig) Profile {
	p := DefaultProfile()
	if len(cfg.ABIs) > 0 {
		p.ABIs = cfg.ABIs
	}
	switch {
	case len(cfg.Densities) > 0:
		p.Densities = cfg.Densities
	case cfg.DensityDPI > 0:
		p.Densities = domain.PrioritizedDensities(cfg.DensityDPI)
	}
	if len(cfg.Locales) > 0 {
		p.Locales = cfg.Locales
	}
	return p
}

// PropReader 读取设备系统属性
type PropReader interface {
	GetProp(ctx context.Context, key string) (string, error)
}

// FromADB 从已连接的设备读取能力描述
func FromADB(ctx context.Context, props PropReader, logger *logrus.Logger) (Profile, error) {
	abiList, err := props.GetProp(ctx, "ro.product.cpu.abilist")
	if err != nil {
		return Profile{}, fmt.Errorf("read abilist: %w", err)
	}
	abis := splitList(abiList)
	if len(abis) == 0 {
		// 老设备只有 ro.product.cpu.abi
		if abi, err := props.GetProp(ctx, "ro.product.cpu.abi"); err == nil && abi != "" {
			abis = []string{abi}
		}
	}

	p := Profile{ABIs: abis}

	if raw, err := props.GetProp(ctx, "ro.sf.lcd_density"); err == nil {
		if dpi, convErr := strconv.Atoi(strings.TrimSpace(raw)); convErr == nil && dpi > 0 {
			p.Densities = domain.PrioritizedDensities(dpi)
		}
	}
	if len(p.Densities) == 0 {
		p.Densities = domain.PrioritizedDensities(160)
	}

	for _, key := range []string{"persist.sys.locale", "ro.product.locale"} {
		if v, err := props.GetProp(ctx, key); err == nil && v != "" {
			p.Locales = splitList(v)
			break
		}
	}

	logger.WithFields(logrus.Fields{
		"abis":      p.ABIs,
		"densities": p.Densities,
		"locales":   p.Locales,
	}).Info("Device profile loaded from adb")

	return p, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
