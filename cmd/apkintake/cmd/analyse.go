package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/apk-analysis/apk-intake-go/internal/config"
	"github.com/apk-analysis/apk-intake-go/internal/datasource"
	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/installed"
	"github.com/apk-analysis/apk-intake-go/internal/pipeline"
	"github.com/apk-analysis/apk-intake-go/internal/report"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
)

func init() {
	analyseCmd.Flags().StringP("format", "f", string(report.FormatText), fmt.Sprintf("output format %v", report.Formats))
	analyseCmd.Flags().StringP("output", "o", "-", "output file, - for stdout")
	analyseCmd.Flags().Bool("split-choose-all", false, "select every split instead of the device-optimal set")
	analyseCmd.Flags().StringSlice("abi", nil, "device ABIs in preference order (overrides config)")
	analyseCmd.Flags().Int("density-dpi", 0, "device screen density in dpi (overrides config)")
	analyseCmd.Flags().StringSlice("locale", nil, "device locales in preference order (overrides config)")
	analyseCmd.Flags().String("installed", "", "installed-packages snapshot file (YAML or JSON list)")
	analyseCmd.Flags().Bool("from-adb", false, "read device profile and installed packages from the adb target")
	analyseCmd.Flags().Bool("keep-cache", false, "keep extracted files after the report is written")
	analyseCmd.MarkFlagFilename("installed", "yaml", "yml", "json")
	analyseCmd.MarkFlagsMutuallyExclusive("installed", "from-adb")
}

var analyseCmd = &cobra.Command{
	Use:           "analyse <FILE>...",
	Aliases:       []string{"analyze", "a"},
	Short:         "Analyse installable containers and print the selected install set",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		format, err := report.ParseFormat(mustString(cmd, "format"))
		if err != nil {
			return err
		}
		applyDeviceFlags(cmd, cfg)

		ctx, cancel := signalContext()
		defer cancel()

		provider, props, err := buildInstalledProvider(ctx, cmd, cfg, logger)
		if err != nil {
			return err
		}
		profile, err := pipeline.ResolveProfile(ctx, cfg, props, logger)
		if err != nil {
			return err
		}

		sources := make([]datasource.DataSource, 0, len(args))
		for _, arg := range args {
			info, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", arg)
			}
			sources = append(sources, datasource.NewFile(filepath.Clean(arg)))
		}

		analysisCfg := cfg.AnalysisDefaults()
		if cmd.Flags().Changed("split-choose-all") {
			analysisCfg.SplitChooseAll, _ = cmd.Flags().GetBool("split-choose-all")
		}

		sessionID := uuid.NewString()
		cacheDir := filepath.Join(cfg.Analysis.CacheDir, sessionID)
		if keep, _ := cmd.Flags().GetBool("keep-cache"); keep {
			logger.WithField("cache_dir", cacheDir).Info("Keeping extracted files")
		} else {
			defer os.RemoveAll(cacheDir)
		}

		startTime := time.Now()
		results, err := pipeline.Build(cfg, provider, logger).Analyse(ctx, analysisCfg, profile, sources, domain.AnalyseExtra{
			SessionID:      sessionID,
			CacheDirectory: cacheDir,
		})
		if err != nil {
			return fmt.Errorf("analysis interrupted: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"packages": len(results),
			"duration": time.Since(startTime).Round(time.Millisecond),
			"input":    humanize.Bytes(uint64(totalSize(sources))),
		}).Debug("Analysis finished")

		out, closeOut, err := openOutput(mustString(cmd, "output"))
		if err != nil {
			return err
		}
		defer closeOut()
		return report.Write(out, format, domain.NewResultViews(results))
	},
}

// applyDeviceFlags 命令行参数覆盖配置中的设备能力
func applyDeviceFlags(cmd *cobra.Command, cfg *config.Config) {
	if abis, _ := cmd.Flags().GetStringSlice("abi"); len(abis) > 0 {
		cfg.Device.ABIs = abis
	}
	if dpi, _ := cmd.Flags().GetInt("density-dpi"); dpi > 0 {
		cfg.Device.DensityDPI = dpi
		cfg.Device.Densities = nil
	}
	if locales, _ := cmd.Flags().GetStringSlice("locale"); len(locales) > 0 {
		cfg.Device.Locales = locales
	}
	if fromADB, _ := cmd.Flags().GetBool("from-adb"); fromADB {
		cfg.Device.Source = "adb"
		cfg.Installed.Provider = "adb"
	}
}

// buildInstalledProvider 快照文件优先，否则按配置选择来源
func buildInstalledProvider(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger) (installed.Provider, device.PropReader, error) {
	var props device.PropReader
	deps := installed.Deps{CacheDir: cfg.Analysis.CacheDir, Logger: logger}
	if cfg.Device.Source == "adb" || cfg.Installed.Provider == "adb" {
		client := newADBClient(cfg, logger)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		deps.Device = client
		props = client
	}

	if path := mustString(cmd, "installed"); path != "" {
		packages, err := installed.LoadSnapshotFile(path)
		if err != nil {
			return nil, nil, err
		}
		return installed.NewSnapshotProvider(packages), props, nil
	}

	if cfg.Installed.Provider == "database" {
		db, err := repository.InitDB(&cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		deps.Repo = repository.NewInstalledPackageRepository(db, logger)
	}
	provider, err := installed.NewProvider(cfg.Installed, deps)
	return provider, props, err
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func totalSize(sources []datasource.DataSource) int64 {
	var n int64
	for _, ds := range sources {
		n += max(ds.Size(), 0)
	}
	return n
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
