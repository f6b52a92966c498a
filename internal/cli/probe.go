// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tierchat/internal/health"
)

type probeJSON struct {
	Tier      string `json:"tier"`
	Host      string `json:"host"`
	Model     string `json:"model"`
	Alive     bool   `json:"alive"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// newProbeCommand runs one health round against every configured tier.
func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check which backends are reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			snap := ctx.newProber(store).Round(cmd.Context())
			return printProbe(cmd, ctx.jsonFlag, snap)
		},
	}
}

func printProbe(cmd *cobra.Command, asJSON bool, snap health.Snapshot) error {
	out := cmd.OutOrStdout()
	statuses := snap.Ordered()

	if asJSON {
		data := make([]probeJSON, 0, len(statuses))
		for _, st := range statuses {
			data = append(data, probeJSON{
				Tier:      st.Tier.String(),
				Host:      st.Host,
				Model:     st.Model,
				Alive:     st.Alive,
				LatencyMs: st.Latency.Milliseconds(),
				Error:     st.Err,
			})
		}
		return NewJSONResponse("probe", data).Write(out)
	}

	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, []string{
			st.Tier.Label(),
			st.Host,
			st.Model,
			RenderAlive(st.Alive),
			st.Latency.Round(time.Millisecond).String(),
			st.Err,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Tier", "Host", "Model", "Status", "Latency", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}
