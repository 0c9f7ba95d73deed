package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	nameColor   = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgGreen)
	busyColor   = color.New(color.FgYellow)
	noticeColor = color.New(color.FgRed)
	dimColor    = color.New(color.Faint)
)

// Text 在终端上绘制视图。颜色是否输出由 color.NoColor 决定。
func Text(w io.Writer, v View) error {
	if v.Placeholder != "" {
		_, err := dimColor.Fprintln(w, v.Placeholder)
		return err
	}

	for _, item := range v.Items {
		if _, err := nameColor.Fprintf(w, "%d. %s", item.Index+1, item.Name); err != nil {
			return err
		}
		if _, err := labelColor.Fprintf(w, "  [%s]\n", item.CopyLabel); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", item.Description); err != nil {
			return err
		}
	}

	if v.Busy {
		if _, err := busyColor.Fprintln(w, BusyText); err != nil {
			return err
		}
	}
	if v.Notice != "" {
		msg := v.Notice
		if v.Incomplete && len(v.Items) > 0 {
			msg += " (showing partial results)"
		}
		if _, err := noticeColor.Fprintln(w, msg); err != nil {
			return err
		}
	}
	return nil
}
