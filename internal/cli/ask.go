// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot prompt command.
//
// Examples:
//   tierchat ask "كم الساعة"
//   tierchat ask --markdown "اشرح خطة الهجرة"
//   tierchat ask --json "hello"
//
// The process exits with status 1 when every backend in the chain failed.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/tierchat/internal/router"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// renderMarkdown renders content for terminal display. It returns content
// unchanged when the renderer is unavailable or fails.
func renderMarkdown(content string) string {
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}

	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// formatAnswer styles a routed response for w. Markdown is only rendered on
// a terminal so piped output stays byte-for-byte what the backend returned.
func formatAnswer(w io.Writer, resp router.Response, markdown bool) string {
	if !resp.OK {
		return ErrorStyle.Render(resp.Text)
	}
	if markdown && isTerminalWriter(w) && resp.Source != router.TierNone {
		return renderMarkdown(resp.Text)
	}
	return resp.Text
}

// =============================================================================
// JSON SHAPES
// =============================================================================

type attemptJSON struct {
	Tier         string  `json:"tier"`
	Host         string  `json:"host"`
	Model        string  `json:"model"`
	OK           bool    `json:"ok"`
	ErrorType    string  `json:"error_type,omitempty"`
	Message      string  `json:"message,omitempty"`
	LatencyMs    int64   `json:"latency_ms"`
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
}

type answerJSON struct {
	RequestID  string        `json:"request_id"`
	Intent     string        `json:"intent"`
	OK         bool          `json:"ok"`
	Source     string        `json:"source"`
	Text       string        `json:"text"`
	Reason     string        `json:"reason"`
	DurationMs int64         `json:"duration_ms"`
	Attempts   []attemptJSON `json:"attempts"`
}

func newAnswerJSON(resp router.Response) answerJSON {
	out := answerJSON{
		RequestID:  resp.RequestID,
		Intent:     resp.Intent.String(),
		OK:         resp.OK,
		Source:     resp.Source.String(),
		Text:       resp.Text,
		Reason:     resp.Reason,
		DurationMs: resp.Duration.Milliseconds(),
		Attempts:   make([]attemptJSON, 0, len(resp.Outcomes)),
	}
	for _, o := range resp.Outcomes {
		a := attemptJSON{
			Tier:         o.Tier.String(),
			Host:         o.Host,
			Model:        o.Model,
			OK:           o.OK,
			LatencyMs:    o.Latency.Milliseconds(),
			TokensPerSec: o.TokensPerSec,
		}
		if !o.OK {
			a.ErrorType = o.Kind.String()
			a.Message = o.Message
		}
		out.Attempts = append(out.Attempts, a)
	}
	return out
}

// =============================================================================
// COMMAND
// =============================================================================

func newAskCommand(ctx *commandContext) *cobra.Command {
	var markdown bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ask PROMPT...",
		Short: "Route a single prompt and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			r, closeRouter := ctx.newRouter(store)
			defer closeRouter()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			prompt := strings.Join(args, " ")
			resp, err := r.Handle(runCtx, prompt, store.Snapshot())
			if errors.Is(err, router.ErrEmptyPrompt) {
				return &UsageError{Arg: "prompt", Reason: "must not be empty"}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.jsonFlag {
				var jr *JSONResponse
				if resp.OK {
					jr = NewJSONResponse("ask", newAnswerJSON(resp))
				} else {
					jr = NewJSONErrorResponseStr("ask", "all backends failed", newAnswerJSON(resp))
				}
				if err := jr.Write(out); err != nil {
					return err
				}
			} else {
				if verbose {
					errOut := cmd.ErrOrStderr()
					fmt.Fprintln(errOut, DimStyle.Render(fmt.Sprintf("intent=%s  %s", resp.Intent, resp.Reason)))
					for i, o := range resp.Outcomes {
						fmt.Fprintln(errOut, DimStyle.Render(describeOutcome(i+1, o)))
					}
				}
				fmt.Fprintln(out, formatAnswer(out, resp, markdown))
			}

			if !resp.OK {
				return &ExitError{Code: ExitGeneralError}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&markdown, "markdown", "m", false, "Render model output as markdown on a terminal")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the routing reason and each attempt to stderr")
	return cmd
}

// describeOutcome renders one attempt for verbose output and /history.
func describeOutcome(n int, o router.Outcome) string {
	status := "ok"
	if !o.OK {
		status = o.Kind.String()
	}
	line := fmt.Sprintf("#%d %-6s %s (%s) %s %dms", n, o.Tier, o.Host, o.Model, status, o.Latency.Milliseconds())
	if o.TokensPerSec > 0 {
		line += fmt.Sprintf(" %.1f tok/s", o.TokensPerSec)
	}
	if o.Message != "" {
		line += ": " + o.Message
	}
	return line
}
