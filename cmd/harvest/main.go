// Command harvest fetches a web page through the acquisition pipeline and
// prints the result as JSON (or raw markup / Markdown) to stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	harvest "github.com/propintel/harvest"
	"github.com/propintel/harvest/config"
	"github.com/propintel/harvest/models"
)

var cli struct {
	URL string `arg:"" help:"Target page URL (http or https)."`

	Raw      bool          `help:"Print the raw markup instead of the normalized document."`
	Markdown bool          `help:"Print the main content as Markdown."`
	Strategy string        `default:"auto" enum:"auto,http,browser" help:"Transport strategy."`
	Timeout  time.Duration `default:"0" help:"Overall deadline; 0 uses the configured default."`
	Pretty   bool          `help:"Indent JSON output."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("harvest"),
		kong.Description("Fetch a web page under anti-bot conditions and normalize its content."),
	)

	cfg := config.Load()
	initLogger(cfg.Log)

	client := harvest.New(cfg)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := &models.AcquireRequest{
		URL:      cli.URL,
		Deadline: cli.Timeout,
		Strategy: cli.Strategy,
	}

	kctx.FatalIfErrorf(run(ctx, client, req))
}

func run(ctx context.Context, client *harvest.Client, req *models.AcquireRequest) error {
	switch {
	case cli.Raw:
		html, err := client.AcquireRaw(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(html)
	case cli.Markdown:
		md, err := client.AcquireMarkdown(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(md)
	default:
		doc, err := client.Acquire(ctx, req)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		if cli.Pretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return nil
}

func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
