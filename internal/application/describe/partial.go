package describe

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"product-copy-api/internal/domain/entity"
)

// ParsePartial 将一段尚未结束的 JSON 文本修复为最近一个合法前缀，并提取已出现的文案条目。
// 未闭合的字符串值按当前内容截断，未完成的键、数字与字面量被丢弃。
// 对象前的说明文字与代码块标记会被跳过：依次尝试每个 '{'，优先取带 descriptions 键的对象。
// 文本中尚无可用结构时返回 ok=false，调用方应保留上一次的结果。
func ParsePartial(text string) (items []entity.Description, ok bool) {
	var fallback map[string]any
	for off := 0; off < len(text); {
		i := strings.IndexByte(text[off:], '{')
		if i < 0 {
			break
		}
		start := off + i
		off = start + 1

		obj, parsed := parseObjectPrefix(text[start:])
		if !parsed {
			continue
		}
		if _, has := obj["descriptions"]; has {
			return descriptionsOf(obj), true
		}
		if fallback == nil {
			fallback = obj
		}
	}
	if fallback == nil {
		return nil, false
	}
	return descriptionsOf(fallback), true
}

// parseObjectPrefix 修复并解析以 '{' 开头的文本
func parseObjectPrefix(text string) (map[string]any, bool) {
	repaired, ok := repairJSON(text)
	if !ok {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// descriptionsOf 只取类型正确的字段，类型不符的值视为缺失
func descriptionsOf(obj map[string]any) []entity.Description {
	arr, ok := obj["descriptions"].([]any)
	if !ok {
		return nil
	}

	out := make([]entity.Description, 0, len(arr))
	for _, raw := range arr {
		var d entity.Description
		if m, ok := raw.(map[string]any); ok {
			d.Name, _ = m["name"].(string)
			d.Description, _ = m["description"].(string)
		}
		out = append(out, d)
	}
	return out
}

type expectation int

const (
	expValue expectation = iota
	expValueOrClose
	expKeyOrClose
	expKey
	expColon
	expCommaOrClose
)

// repairJSON 扫描第一个对象，记录最后一个可安全截断的位置，然后补齐引号与括号
func repairJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	s := trimIncompleteRune(text[start:])

	var (
		stack     []byte
		expect    = expValue
		inString  bool
		isKey     bool
		escape    bool
		hexLeft   int
		hexStart  int
		inLiteral bool

		cut         = -1
		cutStack    []byte
		cutInString bool
	)

	mark := func(pos int, str bool) {
		cut = pos
		cutStack = append(cutStack[:0], stack...)
		cutInString = str
	}
	valueDone := func(pos int) {
		expect = expCommaOrClose
		mark(pos, false)
	}
	// closeContainer 返回 true 表示最外层对象已闭合
	closeContainer := func(pos int) bool {
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			mark(pos, false)
			return true
		}
		valueDone(pos)
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case hexLeft > 0:
				if !isHexDigit(c) {
					return "", false
				}
				hexLeft--
				if hexLeft > 0 {
					continue
				}
				// 高位代理项必须等到低位代理项到达后才能截断
				if v, err := strconv.ParseUint(s[hexStart:i+1], 16, 16); err == nil && v >= 0xD800 && v <= 0xDBFF {
					continue
				}
			case escape:
				escape = false
				if c == 'u' {
					hexLeft = 4
					hexStart = i + 1
					continue
				}
			case c == '\\':
				escape = true
				continue
			case c == '"':
				inString = false
				if isKey {
					expect = expColon
				} else {
					valueDone(i + 1)
				}
				continue
			}
			if !isKey {
				mark(i+1, true)
			}
			continue
		}

		if inLiteral {
			if isLiteralByte(c) {
				continue
			}
			inLiteral = false
			valueDone(i)
		}

		if isSpace(c) {
			continue
		}

		switch expect {
		case expValue, expValueOrClose:
			switch {
			case c == ']' && expect == expValueOrClose:
				if closeContainer(i + 1) {
					return finish(s, cut, cutStack, cutInString), true
				}
			case c == '{':
				stack = append(stack, '{')
				expect = expKeyOrClose
				mark(i+1, false)
			case c == '[':
				stack = append(stack, '[')
				expect = expValueOrClose
				mark(i+1, false)
			case c == '"':
				inString = true
				isKey = false
				mark(i+1, true)
			case c == '-' || (c >= '0' && c <= '9') || c == 't' || c == 'f' || c == 'n':
				inLiteral = true
			default:
				return "", false
			}
		case expKeyOrClose, expKey:
			switch {
			case c == '}' && expect == expKeyOrClose:
				if closeContainer(i + 1) {
					return finish(s, cut, cutStack, cutInString), true
				}
			case c == '"':
				inString = true
				isKey = true
			default:
				return "", false
			}
		case expColon:
			if c != ':' {
				return "", false
			}
			expect = expValue
		case expCommaOrClose:
			top := stack[len(stack)-1]
			switch {
			case c == ',' && top == '{':
				expect = expKey
			case c == ',' && top == '[':
				expect = expValue
			case (c == '}' && top == '{') || (c == ']' && top == '['):
				if closeContainer(i + 1) {
					return finish(s, cut, cutStack, cutInString), true
				}
			default:
				return "", false
			}
		}
	}

	if cut < 0 {
		return "", false
	}
	return finish(s, cut, cutStack, cutInString), true
}

func finish(s string, cut int, stack []byte, inString bool) string {
	var b strings.Builder
	b.Grow(cut + len(stack) + 1)
	b.WriteString(s[:cut])
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// trimIncompleteRune 去掉被分片截断的末尾多字节字符
func trimIncompleteRune(s string) string {
	for i := 0; i < utf8.UTFMax-1 && len(s) > 0; i++ {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isLiteralByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || c == '.' || c == '+' || c == '-' || c == 'E'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
