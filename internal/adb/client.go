package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apk-analysis/apk-intake-go/internal/retry"
)

// ErrPackageNotFound 设备上没有安装该包
var ErrPackageNotFound = errors.New("package not installed on device")

// Runner 执行 adb 命令
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "adb", args...).CombinedOutput()
}

var (
	daemonOnce sync.Once
	daemonErr  error
)

// Client ADB 客户端
type Client struct {
	target  string        // ADB 目标地址 (如 emulator-5554 或 192.168.1.8:5555)
	timeout time.Duration // 单条命令超时
	logger  *logrus.Logger
	runner  Runner
	policy  retry.Policy
}

// NewClient 创建 ADB 客户端
func NewClient(target string, timeout time.Duration, logger *logrus.Logger) *Client {
	return NewClientWithRunner(target, timeout, logger, execRunner{})
}

// NewClientWithRunner 使用自定义命令执行器创建客户端
func NewClientWithRunner(target string, timeout time.Duration, logger *logrus.Logger, runner Runner) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		target:  target,
		timeout: timeout,
		logger:  logger,
		runner:  runner,
		policy:  retry.ADBPolicy(),
	}
}

// Target 设备地址
func (c *Client) Target() string {
	return c.target
}

// Connect 启动 adb daemon，网络设备再执行 adb connect
func (c *Client) Connect(ctx context.Context) error {
	daemonOnce.Do(func() {
		_, daemonErr = c.runner.Run(ctx, "start-server")
	})
	if daemonErr != nil {
		return fmt.Errorf("start adb server: %w", daemonErr)
	}

	if !strings.Contains(c.target, ":") {
		return nil
	}

	out, err := c.run(ctx, "connect", c.target)
	if err != nil {
		return err
	}
	if !strings.Contains(out, "connected") {
		return fmt.Errorf("adb connect %s: %s", c.target, strings.TrimSpace(out))
	}
	c.logger.WithField("target", c.target).Info("ADB device connected")
	return nil
}

// Shell 执行 shell 命令，失败时按策略重试
func (c *Client) Shell(ctx context.Context, command string) (string, error) {
	log := c.logger.WithFields(logrus.Fields{"target": c.target, "command": command})
	return retry.DoValue(ctx, c.policy, log, func(ctx context.Context) (string, error) {
		return c.run(ctx, c.deviceArgs("shell", command)...)
	})
}

// GetProp 读取系统属性
func (c *Client) GetProp(ctx context.Context, key string) (string, error) {
	out, err := c.Shell(ctx, "getprop "+key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GetPackages 获取已安装的包列表
func (c *Client) GetPackages(ctx context.Context) ([]string, error) {
	output, err := c.Shell(ctx, "pm list packages")
	if err != nil {
		return nil, err
	}
	return parsePackageLines(output), nil
}

// PackagePaths 包的 APK 路径（base 在前，split 在后）
func (c *Client) PackagePaths(ctx context.Context, packageName string) ([]string, error) {
	output, err := c.Shell(ctx, "pm path "+packageName)
	if err != nil {
		return nil, err
	}
	paths := parsePackageLines(output)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageName)
	}
	return paths, nil
}

// DumpPackage 通过 dumpsys 读取已安装包的版本信息
func (c *Client) DumpPackage(ctx context.Context, packageName string) (*PackageDump, error) {
	output, err := c.Shell(ctx, "dumpsys package "+packageName)
	if err != nil {
		return nil, err
	}
	return ParseDumpsys(packageName, output)
}

// Pull 把设备上的文件拉取到本地
func (c *Client) Pull(ctx context.Context, remotePath, localPath string) error {
	log := c.logger.WithFields(logrus.Fields{"target": c.target, "remote": remotePath})
	return retry.Do(ctx, c.policy, log, func(ctx context.Context) error {
		_, err := c.run(ctx, c.deviceArgs("pull", remotePath, localPath)...)
		return err
	})
}

// deviceArgs 未指定 target 时交给 adb 选择唯一连接的设备
func (c *Client) deviceArgs(args ...string) []string {
	if c.target == "" {
		return args
	}
	return append([]string{"-s", c.target}, args...)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.runner.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("adb %s failed: %w, output: %s", args[len(args)-1], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// parsePackageLines 解析 "package:xxx" 格式的输出
func parsePackageLines(output string) []string {
	var values []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "package:"); ok && v != "" {
			values = append(values, v)
		}
	}
	return values
}
