// Package render 把消费者快照转换为可展示的视图，并提供复制与下载动作
package render

import (
	"product-copy-api/internal/client/consumer"
	"product-copy-api/internal/domain/entity"
)

const (
	// Placeholder 尚未生成时的占位文案
	Placeholder = "No descriptions yet"
	// BusyText 生成中指示
	BusyText = "Generating..."

	CopyLabel   = "Copy"
	CopiedLabel = "Copied!"
)

// Item 单条描述的展示数据
type Item struct {
	Index       int
	Name        string
	Description string
	CopyLabel   string
}

// View 某一时刻应该展示的内容
type View struct {
	// Placeholder 非空时表示没有任何结果可展示
	Placeholder string
	Items       []Item
	// Busy 结果末尾展示生成中指示
	Busy bool
	// Notice 失败提示
	Notice     string
	Incomplete bool
}

// Build 由快照得到视图。copied 为当前处于"已复制"状态的下标，-1 表示没有。
func Build(snap consumer.Snapshot, copied int) View {
	var v View
	for i, d := range snap.Descriptions {
		label := CopyLabel
		if i == copied {
			label = CopiedLabel
		}
		v.Items = append(v.Items, Item{
			Index:       i,
			Name:        d.Name,
			Description: d.Description,
			CopyLabel:   label,
		})
	}

	switch snap.Status {
	case consumer.StatusGenerating:
		v.Busy = true
	case consumer.StatusSettled:
		if snap.Err != nil {
			v.Notice = snap.Err.Error()
			v.Incomplete = true
		}
	}

	if len(v.Items) == 0 && !v.Busy && v.Notice == "" {
		v.Placeholder = Placeholder
	}
	return v
}

// ClipboardText 复制单条描述时写入剪贴板的文本
func ClipboardText(d entity.Description) string {
	if d.Name == "" {
		return d.Description
	}
	return d.Name + "\n\n" + d.Description
}
