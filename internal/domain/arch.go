package domain

import "strings"

// Architecture 原生库 ABI
type Architecture string

const (
	ArchARM     Architecture = "armeabi"
	ArchARMv7   Architecture = "armeabi-v7a"
	ArchARM64   Architecture = "arm64-v8a"
	ArchX86     Architecture = "x86"
	ArchX86_64  Architecture = "x86_64"
	ArchMIPS    Architecture = "mips"
	ArchMIPS64  Architecture = "mips64"
	ArchNone    Architecture = "none"    // 不包含原生库
	ArchUnknown Architecture = "unknown" // 包含原生库，但没有设备支持的 ABI
)

var knownArchitectures = []Architecture{
	ArchARM, ArchARMv7, ArchARM64, ArchX86, ArchX86_64, ArchMIPS, ArchMIPS64,
}

// ParseArchitecture 解析 ABI 名称，接受下划线写法（arm64_v8a）
func ParseArchitecture(s string) (Architecture, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, a := range knownArchitectures {
		if v == string(a) || v == strings.ReplaceAll(string(a), "-", "_") {
			return a, true
		}
	}
	// x86_64 的连字符写法
	if v == "x86-64" {
		return ArchX86_64, true
	}
	return "", false
}

// IsARM ARM 系列
func (a Architecture) IsARM() bool {
	return a == ArchARM || a == ArchARMv7 || a == ArchARM64
}

// IsX86 x86 系列
func (a Architecture) IsX86() bool {
	return a == ArchX86 || a == ArchX86_64
}
