// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package health probes inference backends in the background and publishes
// their reachability for status displays.
//
// A probe is a GET on the backend's base URL with a short timeout. Results
// never influence routing; a backend marked offline is still tried when a
// prompt needs it.
//
// # Usage
//
//	p := health.NewProber(client, store.Snapshot)
//	g.Go(func() error { return p.Run(ctx) })
//	for snap := range p.Updates() {
//	    fmt.Println(snap.Summary())
//	}
package health
