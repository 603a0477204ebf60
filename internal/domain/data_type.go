package domain

import "strings"

// DataType 容器格式
type DataType string

const (
	DataTypeAPK            DataType = "APK"
	DataTypeAPKS           DataType = "APKS"
	DataTypeAPKM           DataType = "APKM"
	DataTypeXAPK           DataType = "XAPK"
	DataTypeMultiAPK       DataType = "MULTI_APK"
	DataTypeMultiAPKZip    DataType = "MULTI_APK_ZIP"
	DataTypeModuleZip      DataType = "MODULE_ZIP"
	DataTypeMixedModuleAPK DataType = "MIXED_MODULE_APK"
	DataTypeMixedModuleZip DataType = "MIXED_MODULE_ZIP"
	DataTypeNone           DataType = "NONE"
)

// IsMixedModule 模块与应用混合的容器
func (t DataType) IsMixedModule() bool {
	return t == DataTypeMixedModuleAPK || t == DataTypeMixedModuleZip
}

// IsMultiAPK 多应用会话类型
func (t DataType) IsMultiAPK() bool {
	return t == DataTypeMultiAPK || t == DataTypeMultiAPKZip
}

// IsKnown 是否为已识别的格式（空值和 NONE 都视为未知）
func (t DataType) IsKnown() bool {
	return t != "" && t != DataTypeNone
}

// ParseDataType 解析格式名称，大小写不敏感
func ParseDataType(s string) DataType {
	t := DataType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case DataTypeAPK, DataTypeAPKS, DataTypeAPKM, DataTypeXAPK, DataTypeMultiAPK,
		DataTypeMultiAPKZip, DataTypeModuleZip, DataTypeMixedModuleAPK, DataTypeMixedModuleZip:
		return t
	default:
		return DataTypeNone
	}
}

// SessionMode 安装会话模式
type SessionMode string

const (
	SessionModeSingle SessionMode = "single"
	SessionModeBatch  SessionMode = "batch"
)

// SignatureMatchStatus 与已安装版本的签名比对结果
type SignatureMatchStatus string

const (
	SignatureNotInstalled SignatureMatchStatus = "NOT_INSTALLED"
	SignatureMatch        SignatureMatchStatus = "MATCH"
	SignatureMismatch     SignatureMatchStatus = "MISMATCH"
	SignatureUnknownError SignatureMatchStatus = "UNKNOWN_ERROR"
)
