package node

import "strings"

// 各提供方拒绝结构化输出参数时错误信息里常见的片段
var responseFormatMarkers = []string{
	"response_format",
	"json_schema",
	"response_schema",
	"responseschema",
	"response_mime_type",
	"structured output",
	"invalid format",
}

// IsResponseFormatUnsupportedError 判断错误是否由模型不支持 JSON Schema 约束引起。
// 命中时调用方应去掉 schema 参数，只靠提示词约束输出。
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range responseFormatMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response")
}
