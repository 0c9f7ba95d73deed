package describe

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"product-copy-api/internal/domain/entity"
	"product-copy-api/internal/workflow/node"
	apperrors "product-copy-api/pkg/errors"
)

// 偏离目标形态的告警原因
const (
	WarnCountMismatch = "count_mismatch"
	WarnNameTooLong   = "name_too_long"
)

type rawResult struct {
	Descriptions []struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	} `json:"descriptions"`
}

// ParseResult 校验完整的模型输出。
// 无法解析、descriptions 为空或条目缺少字符串字段时返回 ErrSchemaViolation。
func ParseResult(text string) (*entity.GenerationResult, error) {
	raw, ok := node.ExtractJSONObject(text)
	if !ok {
		return nil, apperrors.ErrSchemaViolation.WithDetail("no complete JSON object in model output")
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperrors.ErrSchemaViolation.WithError(err).WithDetail(err.Error())
	}
	if len(parsed.Descriptions) == 0 {
		return nil, apperrors.ErrSchemaViolation.WithDetail("descriptions is empty")
	}

	out := &entity.GenerationResult{Descriptions: make([]entity.Description, 0, len(parsed.Descriptions))}
	for i, d := range parsed.Descriptions {
		if d.Name == nil || d.Description == nil {
			return nil, apperrors.ErrSchemaViolation.WithDetail(fmt.Sprintf("descriptions[%d] is missing name or description", i))
		}
		out.Descriptions = append(out.Descriptions, entity.Description{
			Name:        *d.Name,
			Description: *d.Description,
		})
	}
	return out, nil
}

// ShapeWarnings 返回结构合法但偏离目标的原因（只告警，不拒绝）
func ShapeWarnings(res *entity.GenerationResult, targetCount, maxNameLength int) []string {
	if res == nil {
		return nil
	}
	var warns []string
	if targetCount > 0 && len(res.Descriptions) != targetCount {
		warns = append(warns, WarnCountMismatch)
	}
	if maxNameLength > 0 {
		for _, d := range res.Descriptions {
			if utf8.RuneCountInString(d.Name) > maxNameLength {
				warns = append(warns, WarnNameTooLong)
				break
			}
		}
	}
	return warns
}
