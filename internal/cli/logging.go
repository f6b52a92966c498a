// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/tierchat/internal/config"
)

// configureLogging applies the log section of the config to the global
// logrus logger. A non-empty override wins over the configured level.
func configureLogging(lc config.LogConfig, override string, w io.Writer, colors bool) error {
	levelName := lc.Level
	if strings.TrimSpace(override) != "" {
		levelName = override
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(lc.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			DisableColors: !colors,
		})
	}

	log.SetOutput(w)
	return nil
}

// logToFile sends log output to the configured log file so it does not
// interleave with the interactive chat. The returned function restores
// stderr and closes the file.
func logToFile(lc config.LogConfig) (func(), error) {
	path := lc.Path
	if path == "" {
		var err error
		path, err = config.DataPath("tierchat.log")
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
