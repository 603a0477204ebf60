package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/analyser"
	"github.com/apk-analysis/apk-intake-go/internal/apkparser"
	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/detector"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/preprocess"
)

// Build 按配置组装完整的分析流水线，installed 可以为 nil
func Build(cfg *config.Config, installed preprocess.InstalledInfoProvider, logger *logrus.Logger) *Analyser {
	concurrency := cfg.Analysis.Concurrency
	parser := apkparser.NewParser(logger)
	return NewAnalyser(
		detector.NewDetector(logger),
		analyser.NewAnalyser(parser, concurrency, logger),
		preprocess.NewPreprocessor(installed, concurrency, logger),
		concurrency,
		logger,
	)
}

// ResolveProfile 按 device.source 取得目标设备能力，props 仅在 adb 模式下使用
func ResolveProfile(ctx context.Context, cfg *config.Config, props device.PropReader, logger *logrus.Logger) (device.Profile, error) {
	switch cfg.Device.Source {
	case "", "static":
		return cfg.StaticProfile(), nil
	case "adb":
		if props == nil {
			return device.Profile{}, fmt.Errorf("device source adb requires a device client")
		}
		return device.FromADB(ctx, props, logger)
	default:
		return device.Profile{}, fmt.Errorf("unknown device source %q", cfg.Device.Source)
	}
}
