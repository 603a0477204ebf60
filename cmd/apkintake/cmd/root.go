// Package cmd apkintake 命令行
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apk-analysis/apk-intake-go/internal/adb"
	"github.com/apk-analysis/apk-intake-go/internal/config"
)

var (
	cfgFile string
	// AppVersion 构建时注入
	AppVersion = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "apkintake",
	Short:   "Inspect Android installable containers (APK, APKS, APKM, XAPK, ZIP)",
	Version: AppVersion,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults are used when empty)")
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colorized output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("no-color", rootCmd.PersistentFlags().Lookup("no-color"))
	viper.BindEnv("no-color", "NO_COLOR")

	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(installedCmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// setup 读取配置并创建写到 stderr 的日志器
func setup() (*config.Config, *logrus.Logger, error) {
	cfg := config.Defaults()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		cfg = loaded
	}

	cfg.Log.Output = "stderr"
	if viper.GetBool("verbose") {
		cfg.Log.Level = "debug"
	} else if cfgFile == "" {
		cfg.Log.Level = "warn"
	}
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
	return cfg, config.InitLogger(&cfg.Log), nil
}

// signalContext Ctrl-C 时取消正在进行的分析
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newADBClient(cfg *config.Config, logger *logrus.Logger) *adb.Client {
	return adb.NewClient(cfg.ADB.Target, time.Duration(cfg.ADB.Timeout)*time.Second, logger)
}
