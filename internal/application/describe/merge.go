package describe

import (
	"strings"

	"product-copy-api/internal/domain/entity"
)

// Merge 将新解析出的部分结果合并进当前结果。
// 同一下标的字段只接受前缀扩展，条目数量只增不减，保证已展示的内容不会回退。
func Merge(current, next []entity.Description) []entity.Description {
	n := len(current)
	if len(next) > n {
		n = len(next)
	}

	out := make([]entity.Description, n)
	copy(out, current)
	for i, d := range next {
		out[i].Name = grow(out[i].Name, d.Name)
		out[i].Description = grow(out[i].Description, d.Description)
	}
	return out
}

func grow(prev, next string) string {
	if len(next) > len(prev) && strings.HasPrefix(next, prev) {
		return next
	}
	return prev
}
