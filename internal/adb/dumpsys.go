package adb

import (
	"fmt"
	"strconv"
	"strings"
)

// PackageDump dumpsys package 中与安装判断相关的字段
type PackageDump struct {
	PackageName string
	VersionCode int64
	VersionName string
	MinSdk      int
	TargetSdk   int
	CodePath    string
	IsSystem    bool
	IsArchived  bool
}

// ParseDumpsys 解析 dumpsys package <pkg> 的输出，只读取第一个匹配的包块
func ParseDumpsys(packageName, output string) (*PackageDump, error) {
	header := "Package [" + packageName + "]"
	start := strings.Index(output, header)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageName)
	}

	block := output[start+len(header):]
	if next := strings.Index(block, "Package ["); next >= 0 {
		block = block[:next]
	}

	dump := &PackageDump{PackageName: packageName}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "versionCode="):
			for _, field := range strings.Fields(line) {
				key, value, ok := strings.Cut(field, "=")
				if !ok {
					continue
				}
				switch key {
				case "versionCode":
					dump.VersionCode, _ = strconv.ParseInt(value, 10, 64)
				case "minSdk":
					dump.MinSdk, _ = strconv.Atoi(value)
				case "targetSdk":
					dump.TargetSdk, _ = strconv.Atoi(value)
				}
			}
		case strings.HasPrefix(line, "versionName="):
			dump.VersionName = strings.TrimPrefix(line, "versionName=")
		case strings.HasPrefix(line, "codePath="):
			dump.CodePath = strings.TrimPrefix(line, "codePath=")
		case strings.HasPrefix(line, "pkgFlags=["), strings.HasPrefix(line, "flags=["):
			if strings.Contains(line, " SYSTEM ") {
				dump.IsSystem = true
			}
		case strings.Contains(line, "isArchived=true"), strings.Contains(line, "archived=true"):
			dump.IsArchived = true
		}
	}
	return dump, nil
}
