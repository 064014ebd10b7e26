// ABOUTME: Terminal client for the Veazy visa assistant backend.
// ABOUTME: Provides readline-style input, streamed responses, and the login flow.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/veazy/veazy-client/internal/backend"
	"github.com/veazy/veazy-client/internal/config"
	"github.com/veazy/veazy-client/internal/conversation"
	"github.com/veazy/veazy-client/internal/history"
	"github.com/veazy/veazy-client/internal/identity"
	"github.com/veazy/veazy-client/internal/markdown"
	"github.com/veazy/veazy-client/internal/transport"
	"github.com/veazy/veazy-client/internal/upload"
	"github.com/veazy/veazy-client/internal/verify"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	server := flag.String("server", "", "Backend server URL (overrides config)")
	configPath := flag.String("config", "", "Config file path (overrides default location)")
	noHistory := flag.Bool("no-history", false, "Disable local conversation history")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path := loadConfig(*configPath)
	if *server != "" {
		cfg.Backend.BaseURL = *server
	}
	if *noHistory {
		cfg.History.Enabled = false
	}

	logger := setupLogger(cfg.Logging)

	gray := color.New(color.FgHiBlack)
	fmt.Printf("veazy %s connected to %s\n", version, cfg.Backend.BaseURL)
	if path != "" {
		gray.Printf("config: %s\n", path)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.shutdown()

	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := a.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// loadConfig reads the config file when one exists and falls back to defaults
// otherwise. An explicitly named file that fails to load is fatal.
func loadConfig(explicit string) (*config.Config, string) {
	path := explicit
	if path == "" {
		path = config.DefaultPath()
		if _, err := os.Stat(path); err != nil {
			return config.Default(), ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg, path
}

func setupLogger(cfg config.Logging) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
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

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so they never interleave with the prompt.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// app holds the wired client subsystems for one interactive run.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	holder   *identity.Holder
	api      *backend.Client
	session  *conversation.Manager
	uploader *upload.Orchestrator
	store    *history.Store
	recorder *history.Recorder

	scanner *bufio.Scanner
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	holder := identity.NewHolder()
	api := backend.NewClient(transport.NewClient(cfg.Backend.BaseURL, holder, logger), logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		holder:  holder,
		api:     api,
		scanner: bufio.NewScanner(os.Stdin),
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		a.store = store
	}

	a.newSession()
	a.restoreLogin(ctx)
	return a, nil
}

// newSession replaces the conversation session and everything subscribed to
// it. Used at startup and by /new.
func (a *app) newSession() {
	if a.recorder != nil {
		a.recorder.Stop()
		a.recorder = nil
	}
	if a.session != nil {
		a.session.Close()
	}

	a.session = conversation.NewManager(a.api, a.logger)
	a.uploader = upload.NewOrchestrator(a.api, a.session, a.logger,
		upload.WithNotifyDelay(a.cfg.Upload.NotifyDelay))
	if a.store != nil {
		a.recorder = history.NewRecorder(a.store, a.session)
	}
}

// restoreLogin loads a persisted token and probes the server with it. A token
// the server no longer accepts is discarded quietly.
func (a *app) restoreLogin(ctx context.Context) {
	token := identity.LoadToken()
	if !identity.TokenUsable(token, time.Now()) {
		return
	}

	a.holder.SetToken(token)

	cctx, cancel := a.callCtx(ctx)
	defer cancel()

	id, err := a.api.Session(cctx)
	if err != nil {
		a.holder.Clear()
		if errors.Is(err, backend.ErrUnauthenticated) {
			_ = identity.RemoveToken()
		}
		return
	}

	a.holder.Set(token, *id)
	fmt.Printf("Logged in as %s\n", id.PhoneNumber)
}

func (a *app) shutdown() {
	if a.recorder != nil {
		a.recorder.Stop()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// callCtx bounds one atomic backend call. Run streams are not bounded this
// way; they stay open for as long as the response takes.
func (a *app) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.Backend.RequestTimeout)
}

func (a *app) run(ctx context.Context) error {
	for {
		if id := a.holder.Identity(); id != nil {
			fmt.Printf("[%s]> ", id.PhoneNumber)
		} else {
			fmt.Print("> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if a.scanner.Scan() {
				inputCh <- a.scanner.Text()
			} else {
				if err := a.scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := a.dispatch(ctx, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

func (a *app) dispatch(ctx context.Context, input string) error {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		printHelp()
		return nil
	case "/login":
		return a.login(ctx)
	case "/logout":
		return a.logout(ctx)
	case "/whoami":
		return a.whoami(ctx)
	case "/upload":
		return a.upload(ctx, args)
	case "/history":
		return a.history(ctx, args)
	case "/threads":
		return a.threads(ctx)
	case "/new":
		a.newSession()
		fmt.Println("Started a new conversation")
		return nil
	default:
		if strings.HasPrefix(cmd, "/") {
			return fmt.Errorf("unknown command: %s", cmd)
		}
		return a.send(ctx, input)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /login           Verify your phone number and sign in")
	fmt.Println("  /logout          Sign out and forget the saved token")
	fmt.Println("  /whoami          Show the signed-in user")
	fmt.Println("  /upload <path>   Upload a document (JPEG, PNG, or PDF)")
	fmt.Println("  /history [n]     Show the last n turns of this conversation")
	fmt.Println("  /threads         List recent conversations")
	fmt.Println("  /new             Start a fresh conversation")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit")
}

// ensureSession opens the conversation thread if it is not open yet.
func (a *app) ensureSession(ctx context.Context) error {
	if a.holder.Token() == "" {
		return fmt.Errorf("not logged in; use /login first")
	}
	switch a.session.State() {
	case conversation.StateActive, conversation.StateSending:
		return nil
	}

	cctx, cancel := a.callCtx(ctx)
	defer cancel()
	return a.session.Open(cctx)
}

// send submits a user message and prints the streamed response as it arrives.
func (a *app) send(ctx context.Context, text string) error {
	if err := a.ensureSession(ctx); err != nil {
		return err
	}
	return a.withPrinter(false, func() error {
		return a.session.Send(ctx, text)
	})
}

// withPrinter subscribes a terminal printer to the session for the duration
// of fn, so streamed fragments appear as they arrive.
func (a *app) withPrinter(echoUser bool, fn func() error) error {
	events, subID := a.session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(events, echoUser)
	}()

	err := fn()
	a.session.Unsubscribe(subID)
	<-done
	return err
}

func printEvents(events <-chan conversation.Event, echoUser bool) {
	assistantLabel := color.New(color.FgCyan, color.Bold)
	userLabel := color.New(color.FgHiBlack)

	open := false
	for ev := range events {
		switch ev.Type {
		case conversation.EventTurnAppended:
			switch ev.Turn.Author {
			case conversation.AuthorAssistant:
				if open {
					fmt.Println()
				}
				assistantLabel.Print("assistant> ")
				fmt.Print(ev.Delta)
				open = true
			case conversation.AuthorUser:
				if echoUser {
					userLabel.Printf("you> %s\n", ev.Turn.Content)
				}
			}
		case conversation.EventTurnUpdated:
			if ev.Turn.Author == conversation.AuthorAssistant {
				fmt.Print(ev.Delta)
			}
		case conversation.EventTurnFrozen:
			fmt.Println()
			open = false
		}
	}
	if open {
		fmt.Println()
	}
}

// login walks the phone verification flow interactively.
func (a *app) login(ctx context.Context) error {
	if a.holder.Identity() != nil {
		fmt.Println("Already logged in; /logout first to switch accounts")
		return nil
	}

	flow := verify.NewFlow(a.api, a.logger)
	green := color.New(color.FgGreen)

	countryCode := a.prompt("Country code", "+1")
	for {
		phone := a.prompt("Phone number (10 digits)", "")

		cctx, cancel := a.callCtx(ctx)
		err := flow.SubmitPhone(cctx, countryCode, phone)
		cancel()
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			continue
		}
		break
	}
	fmt.Printf("Code sent to %s\n", countryCode)

	// Code entry. The issued code stays valid for a few minutes; resend has
	// its own cooldown enforced locally before the server is asked.
	for {
		remaining := flow.Remaining().Round(time.Second)
		input := a.prompt(fmt.Sprintf("6-digit code (%s left; 'resend' or 'cancel')", remaining), "")

		switch strings.ToLower(input) {
		case "cancel":
			flow.Cancel()
			fmt.Println("Login cancelled")
			return nil
		case "resend":
			cctx, cancel := a.callCtx(ctx)
			err := flow.Resend(cctx)
			cancel()
			if err != nil {
				fmt.Printf("[error] %v\n", err)
				continue
			}
			fmt.Println("A fresh code is on its way")
			continue
		}

		flow.Paste(input)
		if !flow.CodeComplete() {
			fmt.Printf("[error] %v\n", verify.ErrIncompleteCode)
			continue
		}

		cctx, cancel := a.callCtx(ctx)
		err := flow.SubmitCode(cctx)
		cancel()
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			continue
		}
		break
	}

	for {
		firstName := a.prompt("First name", "")
		lastName := a.prompt("Last name", "")
		email := a.prompt("Email", "")
		if err := flow.SubmitProfile(firstName, lastName, email); err != nil {
			fmt.Printf("[error] %v\n", err)
			continue
		}
		break
	}

	preferred := a.prompt("Preferred name (optional)", "")

	cctx, cancel := a.callCtx(ctx)
	defer cancel()
	id, token, err := flow.SubmitPreference(cctx, preferred)
	if err != nil {
		return err
	}

	a.holder.Set(token, *id)
	if err := identity.SaveToken(token); err != nil {
		a.logger.Warn("saving token failed", "error", err)
	}

	green.Printf("Logged in as %s\n", id.PhoneNumber)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if a.holder.Token() == "" {
		fmt.Println("Not logged in")
		return nil
	}

	cctx, cancel := a.callCtx(ctx)
	defer cancel()
	if err := a.api.Logout(cctx); err != nil {
		a.logger.Warn("server logout failed", "error", err)
	}

	a.holder.Clear()
	if err := identity.RemoveToken(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if a.holder.Token() == "" {
		fmt.Println("Not logged in")
		return nil
	}

	cctx, cancel := a.callCtx(ctx)
	defer cancel()
	id, err := a.api.Session(cctx)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthenticated) {
			fmt.Println("Session expired; use /login")
			return nil
		}
		return err
	}

	fmt.Printf("User ID: %s\n", id.UserID)
	fmt.Printf("Phone:   %s\n", id.PhoneNumber)
	return nil
}

func (a *app) upload(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /upload <path>")
	}
	if err := a.ensureSession(ctx); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	filename := filepath.Base(path)
	return a.withPrinter(true, func() error {
		return a.uploader.Submit(ctx, data, filename, mimeForFile(filename), int64(len(data)))
	})
}

func (a *app) history(ctx context.Context, args string) error {
	if a.store == nil {
		return fmt.Errorf("history is disabled")
	}

	limit := 20
	if args != "" {
		if _, err := fmt.Sscanf(args, "%d", &limit); err != nil || limit < 1 {
			return fmt.Errorf("usage: /history [n]")
		}
	}

	threadID := a.session.ThreadID()
	if threadID == "" {
		return fmt.Errorf("no active conversation; try /threads")
	}

	cctx, cancel := a.callCtx(ctx)
	defer cancel()
	turns, err := a.store.ListTurns(cctx, threadID, limit)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			fmt.Println("Nothing recorded yet")
			return nil
		}
		return err
	}

	userLabel := color.New(color.FgHiBlack)
	assistantLabel := color.New(color.FgCyan, color.Bold)
	for _, t := range turns {
		if t.Author == conversation.AuthorUser {
			userLabel.Printf("you> %s\n", t.Content)
			continue
		}
		assistantLabel.Println("assistant>")
		fmt.Print(markdown.Render(t.Content))
	}
	return nil
}

func (a *app) threads(ctx context.Context) error {
	if a.store == nil {
		return fmt.Errorf("history is disabled")
	}

	cctx, cancel := a.callCtx(ctx)
	defer cancel()
	threads, err := a.store.ListThreads(cctx, 10)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("No recorded conversations")
		return nil
	}

	fmt.Println("Recent conversations:")
	for _, t := range threads {
		fmt.Printf("  %s  %d turns  last active %s\n",
			t.ID, t.TurnCount, t.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *app) prompt(question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	if !a.scanner.Scan() {
		fmt.Println()
		return defaultVal
	}
	input := strings.TrimSpace(a.scanner.Text())
	if input == "" {
		return defaultVal
	}
	return input
}

// mimeForFile maps a filename extension to the upload content type. Anything
// unrecognized returns "" and is rejected before any network call.
func mimeForFile(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}
