// Package main 命令行客户端：收集表单、提交生成并实时渲染结果
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"product-copy-api/internal/client/consumer"
	"product-copy-api/internal/client/form"
	"product-copy-api/internal/client/render"
	"product-copy-api/internal/domain/entity"
	"product-copy-api/pkg/logger"
)

const defaultEndpoint = "http://localhost:8080/api/generate"

type options struct {
	title    string
	features []string
	audience string
	tone     string
	keywords string
	length   string
	endpoint string
	copyItem int
	download string
	noColor  bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("describe", pflag.ContinueOnError)
	fs.StringVarP(&opts.title, "title", "t", "", "product name")
	fs.StringArrayVarP(&opts.features, "feature", "f", nil, "product feature (repeatable)")
	fs.StringVarP(&opts.audience, "audience", "a", "", "target audience")
	fs.StringVar(&opts.tone, "tone", string(entity.ToneProfessional), "tone of voice")
	fs.StringVarP(&opts.keywords, "keywords", "k", "", "SEO keywords (optional)")
	fs.StringVarP(&opts.length, "length", "l", string(entity.LengthMedium), "description length: short, medium or long")
	fs.StringVar(&opts.endpoint, "endpoint", envOr("DESCRIBE_ENDPOINT", defaultEndpoint), "generation endpoint")
	fs.IntVar(&opts.copyItem, "copy", 0, "copy the n-th description (1-based) to the clipboard")
	fs.StringVar(&opts.download, "download", "", "write all descriptions to a file or directory")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.noColor {
		color.NoColor = true
	}
	// 日志写 stderr，stdout 只留给渲染结果
	logger.InitWithWriter(os.Stderr, envOr("DESCRIBE_LOG_LEVEL", "warn"), "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, opts, color.Output, isatty.IsTerminal(os.Stdout.Fd()))
	stop()
	os.Exit(code)
}

func buildForm(opts *options) *form.Form {
	f := form.New()
	f.SetTitle(opts.title)
	f.SetFeatures(opts.features)
	f.SetAudience(opts.audience)
	f.SetTone(entity.Tone(opts.tone))
	f.SetKeywords(opts.keywords)
	f.SetLength(entity.Length(opts.length))
	return f
}

func run(ctx context.Context, opts *options, out io.Writer, live bool) int {
	var drawMu sync.Mutex
	draw := func(v render.View) {
		drawMu.Lock()
		defer drawMu.Unlock()
		if live {
			fmt.Fprint(out, "\033[H\033[2J")
		}
		_ = render.Text(out, v)
	}

	var listener consumer.Listener
	if live {
		listener = func(s consumer.Snapshot) { draw(render.Build(s, -1)) }
	}
	c := consumer.New(opts.endpoint, consumer.WithListener(listener))
	defer c.Close()

	if _, err := buildForm(opts).Submit(ctx, c); err != nil {
		var verrs form.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fmt.Fprintf(os.Stderr, "%s: %s\n", fe.Field, fe.Message)
			}
			return 2
		}
		logger.Error(ctx, "submit failed", err, "endpoint", opts.endpoint)
		return 1
	}

	select {
	case <-c.Done():
	case <-ctx.Done():
		// 中断时关闭连接，保留已收到的部分结果
		c.Close()
	}

	snap := c.Snapshot()
	redraw := func(copied int) { draw(render.Build(snap, copied)) }

	if opts.download != "" {
		path, err := render.Download(opts.download, snap.Descriptions)
		if err != nil {
			redraw(-1)
			logger.Error(ctx, "download failed", err, "path", opts.download)
			return 1
		}
		fmt.Fprintf(os.Stderr, "saved to %s\n", path)
	}

	if opts.copyItem > 0 {
		showCopy(ctx, snap.Descriptions, opts.copyItem-1, live, redraw)
	} else {
		redraw(-1)
	}

	if snap.Err != nil || snap.Status != consumer.StatusSettled {
		logger.Debug(ctx, "generation did not complete", "status", string(snap.Status))
		return 1
	}
	return 0
}

// systemClipboard 复制目标，测试中替换
var systemClipboard render.Clipboard = render.SystemClipboard{}

// showCopy 复制第 i 条并展示"已复制"提示。
// 终端模式下随提示变化重绘，等提示自动消失（或被中断）后返回；
// 非终端输出无法重绘，只输出一次带提示的结果。
func showCopy(ctx context.Context, descriptions []entity.Description, i int, live bool, redraw func(copied int)) {
	if i < 0 || i >= len(descriptions) {
		redraw(-1)
		fmt.Fprintf(os.Stderr, "no description #%d to copy\n", i+1)
		return
	}

	cleared := make(chan struct{})
	tracker := render.NewCopyTracker(systemClipboard, func(copied int) {
		if live {
			redraw(copied)
		}
		if copied < 0 {
			close(cleared)
		}
	})
	defer tracker.Close()

	if err := tracker.Copy(i, render.ClipboardText(descriptions[i])); err != nil {
		redraw(-1)
		logger.Warn(ctx, "copy to clipboard failed", "error", err.Error())
		return
	}
	if !live {
		redraw(tracker.Copied())
		return
	}

	select {
	case <-cleared:
	case <-ctx.Done():
	}
}
