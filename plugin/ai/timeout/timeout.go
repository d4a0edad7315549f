// Package timeout defines centralized timeout constants for conversation turns.
// Package timeout 定义对话轮次的集中式超时常量。
package timeout

import "time"

// Conversation timeout constants.
// 对话超时常量。
const (
	// ModelCallTimeout bounds a single model completion request.
	// ModelCallTimeout 是单次模型补全请求的超时时间。
	ModelCallTimeout = 60 * time.Second

	// ToolExecutionTimeout is the timeout for individual tool execution.
	// ToolExecutionTimeout 是单个工具执行的超时时间。
	ToolExecutionTimeout = 15 * time.Second

	// ToolHTTPTimeout bounds outbound HTTP calls made by web tools.
	// ToolHTTPTimeout 是网络工具对外 HTTP 请求的超时时间。
	ToolHTTPTimeout = 10 * time.Second

	// TurnTimeout bounds a whole conversation turn, both model rounds included.
	// TurnTimeout 是整个对话轮次（包含两轮模型调用）的超时时间。
	TurnTimeout = 2*ModelCallTimeout + ToolExecutionTimeout

	// MaxToolRounds is the number of model rounds allowed per turn. The second
	// round is always sent without tools.
	// MaxToolRounds 是每个轮次允许的模型调用轮数，第二轮不再提供工具。
	MaxToolRounds = 2

	// MaxToolRetries is the number of retries for transient tool failures.
	// MaxToolRetries 是工具临时失败的重试次数。
	MaxToolRetries = 1

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
