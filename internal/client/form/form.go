// Package form 收集产品属性并在提交前做非空校验
package form

import (
	"context"
	"errors"
	"strings"

	"product-copy-api/internal/domain/entity"
)

// ErrSubmitInFlight 上一次提交尚未结束
var ErrSubmitInFlight = errors.New("a generation is already in progress")

// Submitter 发起生成请求的一方（通常是 consumer.Consumer）
type Submitter interface {
	Submit(ctx context.Context, req entity.GenerationRequest) error
	Busy() bool
}

// ValidationErrors 未通过校验的字段集合
type ValidationErrors []entity.FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, "; ")
}

// Field 返回指定字段的错误信息，无错误时返回空串
func (e ValidationErrors) Field(name string) string {
	for _, fe := range e {
		if fe.Field == name {
			return fe.Message
		}
	}
	return ""
}

// Key 特性输入框上的按键
type Key int

const (
	KeyEnter Key = iota + 1
	KeyBackspace
)

// Form 表单状态，非并发安全
type Form struct {
	title    string
	features []string
	audience string
	tone     entity.Tone
	keywords string
	length   entity.Length
}

// New 创建带默认值的表单：一个空特性行，语气 professional，篇幅 medium
func New() *Form {
	return &Form{
		features: []string{""},
		tone:     entity.ToneProfessional,
		length:   entity.LengthMedium,
	}
}

func (f *Form) SetTitle(v string) { f.title = v }
func (f *Form) SetAudience(v string) { f.audience = v }
func (f *Form) SetTone(v entity.Tone) { f.tone = v }
func (f *Form) SetKeywords(v string) { f.keywords = v }
func (f *Form) SetLength(v entity.Length) { f.length = v }

// SetFeature 修改第 i 行特性，越界时忽略
func (f *Form) SetFeature(i int, v string) {
	if i < 0 || i >= len(f.features) {
		return
	}
	f.features[i] = v
}

// SetFeatures 整体替换特性行，至少保留一行
func (f *Form) SetFeatures(values []string) {
	if len(values) == 0 {
		f.features = []string{""}
		return
	}
	f.features = append([]string(nil), values...)
}

// Features 返回特性行副本
func (f *Form) Features() []string {
	return append([]string(nil), f.features...)
}

// AddFeature 追加一个空特性行
func (f *Form) AddFeature() {
	f.features = append(f.features, "")
}

// RemoveFeature 删除第 i 行；只剩一行时不做任何事
func (f *Form) RemoveFeature(i int) bool {
	if len(f.features) <= 1 || i < 0 || i >= len(f.features) {
		return false
	}
	f.features = append(f.features[:i], f.features[i+1:]...)
	return true
}

// HandleFeatureKey 处理第 i 行上的按键，返回之后应获得焦点的行号。
// Enter 在非空行上追加新行；Backspace 在空行（非首行）上删除该行并回到上一行。
func (f *Form) HandleFeatureKey(i int, key Key) int {
	if i < 0 || i >= len(f.features) {
		return i
	}
	switch key {
	case KeyEnter:
		if strings.TrimSpace(f.features[i]) != "" {
			f.AddFeature()
			return len(f.features) - 1
		}
	case KeyBackspace:
		if f.features[i] == "" && i > 0 && f.RemoveFeature(i) {
			return i - 1
		}
	}
	return i
}

// Validate 校验必填字段，通过时返回去掉空特性行的请求
func (f *Form) Validate() (entity.GenerationRequest, error) {
	features := make([]string, 0, len(f.features))
	for _, v := range f.features {
		if v = strings.TrimSpace(v); v != "" {
			features = append(features, v)
		}
	}

	req := entity.GenerationRequest{
		Title:    strings.TrimSpace(f.title),
		Features: features,
		Audience: strings.TrimSpace(f.audience),
		Tone:     f.tone,
		Keywords: strings.TrimSpace(f.keywords),
		Length:   f.length,
	}
	if errs := req.MissingFields(); len(errs) > 0 {
		return entity.GenerationRequest{}, ValidationErrors(errs)
	}
	return req, nil
}

// Submit 校验并触发恰好一次生成调用。
// 校验失败时不会发起任何网络请求；上一次生成未结束时返回 ErrSubmitInFlight。
func (f *Form) Submit(ctx context.Context, s Submitter) (entity.GenerationRequest, error) {
	req, err := f.Validate()
	if err != nil {
		return entity.GenerationRequest{}, err
	}
	if s.Busy() {
		return entity.GenerationRequest{}, ErrSubmitInFlight
	}
	if err := s.Submit(ctx, req); err != nil {
		return entity.GenerationRequest{}, err
	}
	return req, nil
}
