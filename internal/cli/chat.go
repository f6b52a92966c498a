// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Every prompt is routed on its own goroutine and the answer comes back over
// a channel, so the prompt stays usable while a slow reasoning tier works.
// The health prober and the config watcher run alongside under one errgroup.
//
// Interactive commands:
//   /help              Show available commands
//   /status            Backend health and pending prompts
//   /get KEY           Show a setting
//   /set KEY VALUE     Change a setting and save it
//   /history [N]       Show the last N transcript entries
//   /clear             Clear the transcript
//   /export [PATH]     Write the transcript as Markdown or JSON
//   /quit, /q          Exit (also Ctrl+D, Ctrl+C at the prompt)

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/tierchat/internal/config"
	"github.com/jeranaias/tierchat/internal/export"
	"github.com/jeranaias/tierchat/internal/health"
	"github.com/jeranaias/tierchat/internal/model"
	"github.com/jeranaias/tierchat/internal/router"
	"github.com/jeranaias/tierchat/internal/util"
)

const defaultHistoryLen = 20

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input at a time.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile, err := config.DataPath("chat_history")
	if err != nil {
		historyFile = ""
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file (0600).
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// plainReader reads lines from a non-terminal input such as a pipe.
type plainReader struct {
	scanner *bufio.Scanner
}

func newPlainReader(in io.Reader) *plainReader {
	return &plainReader{scanner: bufio.NewScanner(in)}
}

func (p *plainReader) ReadInput(prompt string) (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainReader) Close() {}

func newLineReader(cmd *cobra.Command) lineReader {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isTerminalFd(f.Fd()) {
		return NewChatCLI()
	}
	return newPlainReader(in)
}

// =============================================================================
// SESSION STATE
// =============================================================================

type chatResult struct {
	resp router.Response
	err  error
}

// chatSession holds the state for an interactive chat session.
type chatSession struct {
	cmdCtx     *commandContext
	store      *config.Store
	router     *router.Router
	prober     *health.Prober
	transcript *model.Transcript
	markdown   bool

	out   io.Writer
	outMu sync.Mutex

	results chan chatResult
	pending sync.WaitGroup

	statsMu    sync.Mutex
	submitted  int
	failed     int
	lastStatus string
}

func (s *chatSession) println(lines ...string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	for _, line := range lines {
		fmt.Fprintln(s.out, line)
	}
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCommand(ctx *commandContext) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}

			restoreLog, err := logToFile(store.Snapshot().Log)
			if err != nil {
				log.WithError(err).Warn("Logging to stderr")
			} else {
				defer restoreLog()
			}

			r, closeRouter := ctx.newRouter(store)
			defer closeRouter()

			input := newLineReader(cmd)
			defer input.Close()

			session := &chatSession{
				cmdCtx:     ctx,
				store:      store,
				router:     r,
				prober:     ctx.newProber(store),
				transcript: model.NewTranscript(0),
				markdown:   markdown,
				out:        cmd.OutOrStdout(),
				results:    make(chan chatResult, 16),
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return session.run(runCtx, input)
		},
	}

	cmd.Flags().BoolVarP(&markdown, "markdown", "m", false, "Render model output as markdown")
	return cmd
}

// run drives the session until the input ends, /quit, or ctx is cancelled.
// Background tasks are stopped and in-flight prompts are drained first.
func (s *chatSession) run(ctx context.Context, input lineReader) error {
	bgCtx, cancelBg := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(bgCtx)

	g.Go(func() error { return s.prober.Run(gctx) })
	g.Go(func() error {
		if err := s.store.Watch(gctx, s.onConfigChange); err != nil {
			log.WithError(err).Warn("Config watcher stopped")
		}
		return nil
	})
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		s.printLoop()
	}()

	s.printWelcome()
	s.readLoop(ctx, input)

	s.pending.Wait()
	close(s.results)
	<-printerDone

	cancelBg()
	err := g.Wait()
	s.printExitSummary()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type inputLine struct {
	text string
	done chan struct{}
}

// readLoop reads input on its own goroutine so a signal can end the session
// while the prompt is blocked. The reader waits for each line to be handled
// before prompting again.
func (s *chatSession) readLoop(ctx context.Context, input lineReader) {
	lines := make(chan inputLine)
	quit := make(chan struct{})
	defer close(quit)

	go func() {
		defer close(lines)
		for {
			text, err := input.ReadInput(PromptStyle.Render("tierchat> "))
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
					log.WithError(err).Debug("Input ended")
				}
				return
			}
			line := inputLine{text: text, done: make(chan struct{})}
			select {
			case lines <- line:
			case <-quit:
				return
			}
			<-line.done
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			keepGoing := s.handleInput(ctx, line.text)
			close(line.done)
			if !keepGoing {
				return
			}
		}
	}
}

// handleInput dispatches one line and reports whether the session continues.
func (s *chatSession) handleInput(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	if strings.EqualFold(text, "exit") || strings.EqualFold(text, "quit") {
		return false
	}
	if strings.HasPrefix(text, "/") {
		keepGoing, err := s.handleSlashCommand(text)
		if err != nil {
			s.transcript.Append(model.NewSystemEntry(err.Error(), true))
			s.println(ErrorStyle.Render("[Error] ") + err.Error())
		}
		return keepGoing
	}
	s.submit(ctx, text)
	return true
}

// submit routes text in the background.
func (s *chatSession) submit(ctx context.Context, text string) {
	s.transcript.Append(model.NewUserEntry(text))

	cfg := s.store.Snapshot()
	match, plan := s.router.Plan(text, cfg)
	if len(plan.Attempts) > 0 {
		labels := make([]string, len(plan.Attempts))
		for i, a := range plan.Attempts {
			labels[i] = a.Tier.Label()
		}
		s.println(DimStyle.Render(fmt.Sprintf("↳ %s: %s", match.Intent, strings.Join(labels, " → "))))
	}

	s.statsMu.Lock()
	s.submitted++
	s.statsMu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		resp, err := s.router.Handle(ctx, text, cfg)
		s.results <- chatResult{resp: resp, err: err}
	}()
}

// printLoop prints answers and status changes until results is closed.
func (s *chatSession) printLoop() {
	updates := s.prober.Updates()
	for {
		select {
		case res, ok := <-s.results:
			if !ok {
				return
			}
			s.showResult(res)
		case snap := <-updates:
			s.showStatus(snap)
		}
	}
}

func (s *chatSession) showResult(res chatResult) {
	if res.err != nil {
		s.transcript.Append(model.NewSystemEntry(res.err.Error(), true))
		s.println(ErrorStyle.Render("[Error] ") + res.err.Error())
		return
	}

	entry := s.transcript.Append(model.EntryFromResponse(res.resp))
	if entry.IsError {
		s.statsMu.Lock()
		s.failed++
		s.statsMu.Unlock()
	}
	s.println("", formatAnswer(s.out, res.resp, s.markdown), "")
}

// showStatus prints the health line only when it changes.
func (s *chatSession) showStatus(snap health.Snapshot) {
	summary := snap.Summary()
	s.statsMu.Lock()
	changed := summary != s.lastStatus
	s.lastStatus = summary
	s.statsMu.Unlock()
	if changed {
		s.println(DimStyle.Render("status: " + summary))
	}
}

func (s *chatSession) onConfigChange(cfg *config.Config) {
	if s.cmdCtx.logLevelFlag == "" {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			log.SetLevel(level)
		}
	}
	s.println(DimStyle.Render("Configuration reloaded from " + s.store.Path()))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (s *chatSession) handleSlashCommand(input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/quit", "/q", "/exit":
		return false, nil

	case "/help", "/h":
		s.printHelp()

	case "/status", "/s":
		s.printStatus()

	case "/get":
		if len(args) != 1 {
			return true, &UsageError{Arg: "arguments", Reason: "usage: /get KEY"}
		}
		value, err := s.store.Snapshot().Get(args[0])
		if err != nil {
			return true, err
		}
		s.println(fmt.Sprintf("%s = %v", args[0], value))

	case "/set":
		if len(args) < 2 {
			return true, &UsageError{Arg: "arguments", Reason: "usage: /set KEY VALUE"}
		}
		value := strings.Join(args[1:], " ")
		if err := saveSetting(s.store, args[0], value); err != nil {
			return true, err
		}
		s.transcript.Append(model.NewSystemEntry(fmt.Sprintf("set %s = %s", args[0], value), false))
		s.println(SuccessStyle.Render("Saved") + fmt.Sprintf(" %s = %s", args[0], value))

	case "/history":
		n := defaultHistoryLen
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return true, &UsageError{Arg: "count", Reason: "must be a positive number"}
			}
			n = v
		}
		s.printHistory(n)

	case "/clear", "/c":
		s.transcript.Clear()
		s.println(DimStyle.Render("Transcript cleared."))

	case "/export":
		path := ""
		if len(args) > 0 {
			path = strings.Join(args, " ")
		}
		written, err := export.ExportToFile(s.transcript.Entries(), export.ForPath(path, nil), path, nil)
		if err != nil {
			return true, err
		}
		s.println(SuccessStyle.Render("Exported") + " " + written)

	default:
		return true, &UsageError{Arg: "command", Reason: fmt.Sprintf("unknown command %s (try /help)", name)}
	}
	return true, nil
}

func (s *chatSession) printWelcome() {
	s.println(
		TitleStyle.Render("tierchat "+Version),
		DimStyle.Render("Type a message, /help for commands, /quit to exit."),
	)
}

func (s *chatSession) printHelp() {
	s.println(
		SectionStyle.Render("Commands"),
		"  /status            backend health and pending prompts",
		"  /get KEY           show a setting",
		"  /set KEY VALUE     change a setting and save it",
		"  /history [N]       show the last N entries",
		"  /clear             clear the transcript",
		"  /export [PATH]     write the transcript (.md or .json)",
		"  /quit              exit",
	)
}

func (s *chatSession) printStatus() {
	lines := []string{SectionStyle.Render("Backends")}
	snap, ok := s.prober.Latest()
	if !ok {
		lines = append(lines, DimStyle.Render("  no probe has completed yet"))
	}
	for _, st := range snap.Ordered() {
		lines = append(lines, fmt.Sprintf("  %s %s  %s (%s)",
			RenderLabel(st.Tier.Label()), RenderAlive(st.Alive), st.Host, st.Model))
	}

	s.statsMu.Lock()
	submitted, failed := s.submitted, s.failed
	s.statsMu.Unlock()

	lines = append(lines,
		SectionStyle.Render("Session"),
		fmt.Sprintf("  %s%d", RenderLabel("Prompts:"), submitted),
		fmt.Sprintf("  %s%d", RenderLabel("Failed:"), failed),
		fmt.Sprintf("  %s%s", RenderLabel("Config:"), s.store.Path()),
	)
	s.println(lines...)
}

func (s *chatSession) printHistory(n int) {
	entries := s.transcript.History(n)
	if len(entries) == 0 {
		s.println(DimStyle.Render("No messages yet."))
		return
	}
	width := GetTerminalWidth() - 30
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		who := e.Role.DisplayName()
		if e.Source != router.TierNone {
			who += " · " + e.Source.String()
		}
		text := util.TruncateWidth(util.SingleLine(e.Text), width)
		if e.IsError {
			text = ErrorStyle.Render(text)
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			DimStyle.Render(e.Timestamp.Format("15:04:05")), RenderLabel(who), text))
	}
	s.println(lines...)
}

func (s *chatSession) printExitSummary() {
	s.statsMu.Lock()
	submitted, failed := s.submitted, s.failed
	s.statsMu.Unlock()
	s.println("", DimStyle.Render(fmt.Sprintf("Session ended: %d prompt(s), %d failed.", submitted, failed)))
}
