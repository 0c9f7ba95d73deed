// Package entity 定义领域实体
package entity

import (
	"strings"
)

// Tone 文案语气
type Tone string

const (
	ToneProfessional     Tone = "professional"
	TonePersuasive       Tone = "persuasive"
	ToneEnthusiastic     Tone = "enthusiastic"
	ToneConfident        Tone = "confident"
	ToneFriendly         Tone = "friendly"
	ToneInnovative       Tone = "innovative"
	ToneAuthoritative    Tone = "authoritative"
	ToneInformative      Tone = "informative"
	ToneSolutionOriented Tone = "solution-oriented"
	ToneVisionary        Tone = "visionary"
)

// Tones 可选语气（表单展示顺序）
var Tones = []Tone{
	ToneProfessional,
	TonePersuasive,
	ToneEnthusiastic,
	ToneConfident,
	ToneFriendly,
	ToneInnovative,
	ToneAuthoritative,
	ToneInformative,
	ToneSolutionOriented,
	ToneVisionary,
}

// IsValid 是否为封闭集合中的语气
func (t Tone) IsValid() bool {
	for _, v := range Tones {
		if t == v {
			return true
		}
	}
	return false
}

// Length 文案篇幅
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Lengths 可选篇幅
var Lengths = []Length{LengthShort, LengthMedium, LengthLong}

// IsValid 是否为合法篇幅
func (l Length) IsValid() bool {
	switch l {
	case LengthShort, LengthMedium, LengthLong:
		return true
	default:
		return false
	}
}

// 表单字段名（与 JSON 键一致）
const (
	FieldTitle    = "title"
	FieldFeatures = "features"
	FieldAudience = "audience"
	FieldTone     = "tone"
	FieldKeywords = "keywords"
	FieldLength   = "length"
)

// GenerationRequest 一次生成请求的产品属性，提交后不可变
type GenerationRequest struct {
	Title    string   `json:"title"`
	Features []string `json:"features"`
	Audience string   `json:"audience"`
	Tone     Tone     `json:"tone"`
	Keywords string   `json:"keywords"`
	Length   Length   `json:"length"`
}

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// MissingFields 返回未通过校验的字段，顺序与表单一致
func (r GenerationRequest) MissingFields() []FieldError {
	var errs []FieldError

	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, FieldError{Field: FieldTitle, Message: "Name is required"})
	}
	if !hasNonEmpty(r.Features) {
		errs = append(errs, FieldError{Field: FieldFeatures, Message: "At least one feature is required"})
	}
	if strings.TrimSpace(r.Audience) == "" {
		errs = append(errs, FieldError{Field: FieldAudience, Message: "Target audience is required"})
	}
	switch {
	case strings.TrimSpace(string(r.Tone)) == "":
		errs = append(errs, FieldError{Field: FieldTone, Message: "Tone is required"})
	case !r.Tone.IsValid():
		errs = append(errs, FieldError{Field: FieldTone, Message: "Unknown tone: " + string(r.Tone)})
	}
	switch {
	case strings.TrimSpace(string(r.Length)) == "":
		errs = append(errs, FieldError{Field: FieldLength, Message: "Description length is required"})
	case !r.Length.IsValid():
		errs = append(errs, FieldError{Field: FieldLength, Message: "Unknown description length: " + string(r.Length)})
	}

	return errs
}

func hasNonEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Description 一条生成的产品文案
type Description struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GenerationResult 生成结果（最终形态）
type GenerationResult struct {
	Descriptions []Description `json:"descriptions"`
}
