// Package node 提供模型输出处理的公共小工具
package node

import "strings"

// ExtractJSONObject 从模型输出中截取第一个括号配平的 JSON 对象。
// 模型偶尔会在对象前后夹带说明文字或 ```json 代码块，这里一并跳过。
// 找不到完整对象时返回 false。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
