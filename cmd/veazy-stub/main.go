// ABOUTME: Entry point for the veazy-stub development backend.
// ABOUTME: Serves the full wire surface in memory for local client work.

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/veazy/veazy-client/internal/stubserver"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
__   _____  __ _ _____   _
\ \ / / _ \/ _' |_  / | | |
 \ V /  __/ (_| |/ /| |_| |
  \_/ \___|\__,_/___|\__, |
                     |___/   stub backend
`

func main() {
	addr := flag.String("addr", "localhost:8000", "Listen address")
	secret := flag.String("secret", "", "Token signing secret (random when empty)")
	devCode := flag.String("dev-code", "", "Fixed OTP code instead of random ones")
	chunkSize := flag.Int("chunk-size", 8, "Streamed response fragment size in runes")
	logLevel := flag.String("log-level", "info", "Log level (debug/info/warn/error)")
	logFormat := flag.String("log-format", "text", "Log format (text/json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, *secret, *devCode, *chunkSize, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, secret, devCode string, chunkSize int, logLevel, logFormat string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	if secret == "" {
		secret = os.Getenv("VEAZY_STUB_SECRET")
	}
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generating signing secret: %w", err)
		}
		secret = base64.StdEncoding.EncodeToString(buf)
	}

	logger := setupLogger(logLevel, logFormat)

	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", addr)
	green.Print("    ▶ ")
	fmt.Printf("Metrics:  http://%s/metrics\n", addr)
	if devCode != "" {
		green.Print("    ▶ ")
		fmt.Print("Dev OTP:  ")
		yellow.Println(devCode)
	} else {
		green.Print("    ▶ ")
		fmt.Println("Dev OTP:  disabled (codes appear in the log)")
	}
	fmt.Println()

	opts := []stubserver.Option{stubserver.WithChunkSize(chunkSize)}
	if devCode != "" {
		opts = append(opts, stubserver.WithDevCode(devCode))
	}
	stub := stubserver.New([]byte(secret), logger, opts...)

	srv := &http.Server{
		Addr:              addr,
		Handler:           stub.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting veazy-stub", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func setupLogger(levelName, format string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
