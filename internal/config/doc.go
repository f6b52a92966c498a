// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tierchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - TierConfig: One inference backend (host, model, timeout)
//   - Store: Live configuration held as an atomically replaced snapshot
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TIERCHAT_*)
//   - ~/.tierchat/config.toml
//   - ~/.tierchat/config.json
//   - Built-in defaults
//
// # Usage
//
// Open the store and read a snapshot:
//
//	store, err := config.OpenStore(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	host := store.Snapshot().Tiers.Remote.Host
//
// Change and persist a setting:
//
//	if _, err := store.Set("tiers.remote.host", "10.0.0.5"); err != nil {
//	    return err
//	}
//	return store.Save()
package config
