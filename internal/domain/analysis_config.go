package domain

// Authorizer 安装授权方式
type Authorizer string

const (
	AuthorizerGlobal    Authorizer = "global"
	AuthorizerNone      Authorizer = "none"
	AuthorizerRoot      Authorizer = "root"
	AuthorizerShizuku   Authorizer = "shizuku"
	AuthorizerDhizuku   Authorizer = "dhizuku"
	AuthorizerCustomize Authorizer = "customize"
)

// AnalysisConfig 单次分析使用的配置
type AnalysisConfig struct {
	Authorizer         Authorizer
	SplitChooseAll     bool
	ModuleFlashEnabled bool
}

// DefaultAnalysisConfig 未显式指定配置时使用的默认值
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Authorizer:         AuthorizerGlobal,
		SplitChooseAll:     false,
		ModuleFlashEnabled: true,
	}
}

// AnalyseExtra 分析调用的附加上下文
type AnalyseExtra struct {
	SessionID      string
	CacheDirectory string
	// DataType 已知的容器格式，未知时为空
	DataType           DataType
	ModuleFlashEnabled bool
}
