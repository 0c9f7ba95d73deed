package render

import (
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

// CopyAckDuration "已复制" 提示的持续时间
const CopyAckDuration = 2 * time.Second

// Clipboard 剪贴板写入方
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard 系统剪贴板
type SystemClipboard struct{}

// WriteAll 写入系统剪贴板
func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// Supported 当前系统是否有可用的剪贴板工具
func (SystemClipboard) Supported() bool {
	return !clipboard.Unsupported
}

// CopyTracker 记录最近一次复制的条目，提示在 CopyAckDuration 后自动消失
type CopyTracker struct {
	clip     Clipboard
	duration time.Duration
	onChange func(copied int)

	mu     sync.Mutex
	copied int
	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewCopyTracker 创建 CopyTracker；onChange 在提示状态变化时调用，可为 nil
func NewCopyTracker(clip Clipboard, onChange func(copied int)) *CopyTracker {
	return &CopyTracker{
		clip:     clip,
		duration: CopyAckDuration,
		onChange: onChange,
		copied:   -1,
	}
}

// Copy 复制第 i 条的文本，并把提示切换到第 i 条
func (t *CopyTracker) Copy(i int, text string) error {
	if err := t.clip.WriteAll(text); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.copied = i
	t.timer = time.AfterFunc(t.duration, func() { t.expire(gen) })
	t.mu.Unlock()

	t.notify(i)
	return nil
}

// Copied 当前处于提示状态的下标，-1 表示没有
func (t *CopyTracker) Copied() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copied
}

// Close 取消未触发的计时器，之后不再回调
func (t *CopyTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *CopyTracker) expire(gen uint64) {
	t.mu.Lock()
	// 过期的计时器（已被新的复制替换）直接忽略
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.copied = -1
	t.timer = nil
	t.mu.Unlock()

	t.notify(-1)
}

func (t *CopyTracker) notify(copied int) {
	if t.onChange != nil {
		t.onChange(copied)
	}
}
