// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tierchat/internal/router"
)

type planStepJSON struct {
	Tier       string `json:"tier"`
	Host       string `json:"host"`
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeout_secs"`
}

type classifyJSON struct {
	Intent       string         `json:"intent"`
	Keyword      string         `json:"keyword,omitempty"`
	RulesVersion int            `json:"rules_version"`
	Attempts     []planStepJSON `json:"attempts"`
	BudgetSec    int            `json:"budget_secs"`
}

// newClassifyCommand shows how a prompt would be routed without contacting
// any backend.
func newClassifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "classify PROMPT...",
		Short: "Show the intent and attempt chain for a prompt (no network)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			match, plan := router.New(nil).Plan(prompt, store.Snapshot())
			out := cmd.OutOrStdout()

			if ctx.jsonFlag {
				data := classifyJSON{
					Intent:       match.Intent.String(),
					Keyword:      match.Keyword,
					RulesVersion: router.RulesVersion,
					Attempts:     make([]planStepJSON, 0, len(plan.Attempts)),
					BudgetSec:    int(plan.Budget().Seconds()),
				}
				for _, a := range plan.Attempts {
					data.Attempts = append(data.Attempts, planStepJSON{
						Tier:       a.Tier.String(),
						Host:       a.Endpoint.Host,
						Model:      a.Endpoint.Model,
						TimeoutSec: int(a.Endpoint.Timeout.Seconds()),
					})
				}
				return NewJSONResponse("classify", data).Write(out)
			}

			fmt.Fprintf(out, "%s%s\n", RenderLabel("Intent:"), ValueStyle.Render(match.Intent.String()))
			fmt.Fprintf(out, "%s%s\n", RenderLabel("Reason:"), DimStyle.Render(match.Reason()))
			fmt.Fprintf(out, "%s%s\n", RenderLabel("Handling:"), match.Intent.Description())

			if len(plan.Attempts) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(plan.Attempts))
			for i, a := range plan.Attempts {
				rows = append(rows, []string{
					fmt.Sprintf("%d", i+1),
					a.Tier.Label(),
					a.Endpoint.Host,
					a.Endpoint.Model,
					a.Endpoint.Timeout.String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Tier", "Host", "Model", "Timeout"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "%s%s\n", RenderLabel("Worst case:"), plan.Budget())
			return nil
		},
	}
}
