// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/tierchat/internal/journal"
	"github.com/jeranaias/tierchat/internal/router"
	"github.com/jeranaias/tierchat/internal/util"
)

type journalJSON struct {
	Attempts []journal.Attempt            `json:"attempts"`
	Stats    map[string]journal.TierStats `json:"stats"`
}

func newJournalCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var pruneOlder time.Duration

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent backend attempts and per-tier success rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			cfg := store.Snapshot()
			out := cmd.OutOrStdout()
			if !cfg.Journal.Enabled {
				fmt.Fprintln(out, WarningStyle.Render("Journal is disabled (journal.enabled = false)"))
				return nil
			}

			j, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer j.Close()

			runCtx := cmd.Context()
			if pruneOlder > 0 {
				n, err := j.Prune(runCtx, time.Now().Add(-pruneOlder))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d attempt(s) older than %s\n", n, pruneOlder)
			}

			attempts, err := j.Recent(runCtx, limit)
			if err != nil {
				return err
			}
			stats, err := j.Stats(runCtx)
			if err != nil {
				return err
			}

			if ctx.jsonFlag {
				data := journalJSON{Attempts: attempts, Stats: map[string]journal.TierStats{}}
				for tier, s := range stats {
					data.Stats[tier.String()] = s
				}
				return NewJSONResponse("journal", data).Write(out)
			}

			fmt.Fprintln(out, SectionStyle.Render(fmt.Sprintf("Recent attempts (%s)", j.Path())))
			if len(attempts) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No attempts recorded yet."))
			} else {
				fmt.Fprintln(out, renderAttempts(attempts))
			}

			fmt.Fprintln(out, SectionStyle.Render("Per-tier stats"))
			fmt.Fprintln(out, renderTierStats(stats))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultLimit, "Number of attempts to show")
	cmd.Flags().DurationVar(&pruneOlder, "prune", 0, "Delete attempts older than this duration first (e.g. 720h)")
	return cmd
}

func renderAttempts(attempts []journal.Attempt) string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		status := "ok"
		if !a.OK {
			status = a.ErrorType
		}
		rows = append(rows, []string{
			humanize.Time(a.CreatedAt),
			util.TruncateRunes(a.RequestID, 8),
			fmt.Sprintf("%d", a.AttemptNo),
			a.Intent.String(),
			a.Tier.String(),
			a.Model,
			status,
			fmt.Sprintf("%dms", a.Latency.Milliseconds()),
			util.TruncateWidth(a.Message, 40),
		})
	}
	return renderTable(
		[]string{"When", "Request", "#", "Intent", "Tier", "Model", "Result", "Latency", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderTierStats(stats map[router.Tier]journal.TierStats) string {
	tiers := make([]router.Tier, 0, len(stats))
	for t := range stats {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })

	rows := make([][]string, 0, len(tiers))
	for _, t := range tiers {
		s := stats[t]
		lastFailure := "never"
		if !s.LastFailure.IsZero() {
			lastFailure = humanize.Time(s.LastFailure)
		}
		rows = append(rows, []string{
			t.Label(),
			humanize.Comma(int64(s.Attempts)),
			fmt.Sprintf("%.0f%%", s.SuccessRate()*100),
			s.AvgLatency.Round(time.Millisecond).String(),
			lastFailure,
		})
	}
	return renderTable(
		[]string{"Tier", "Attempts", "Success", "Avg latency", "Last failure"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}
