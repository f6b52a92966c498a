// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tierchat/internal/model"
	"github.com/jeranaias/tierchat/internal/router"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts entries to Markdown.
func (e *MarkdownExporter) Export(entries []model.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTranscript
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(firstUserText(entries))))
		sb.WriteString(fmt.Sprintf("started: %s\n", entries[0].Timestamp.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("entries: %d\n", len(entries)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: tierchat\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString("# tierchat transcript\n\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.formatSummary(entries))
		sb.WriteString("\n---\n\n")
	}

	for i, entry := range entries {
		label := e.formatRoleLabel(entry)
		if e.options.IncludeTimestamps {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(entry.Timestamp)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", label))
		}

		content := strings.TrimSpace(entry.Text)
		if entry.IsError {
			content = "> " + strings.ReplaceAll(content, "\n", "\n> ")
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if i < len(entries)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) formatRoleLabel(entry model.Entry) string {
	label := "[" + entry.Role.DisplayName() + "]"
	if entry.Source != router.TierNone {
		label += " " + entry.Source.Label()
	}
	if entry.IsError {
		label += " (failed)"
	}
	return label
}

// formatSummary lists how many answers each tier produced.
func (e *MarkdownExporter) formatSummary(entries []model.Entry) string {
	counts := make(map[router.Tier]int)
	failed := 0
	for _, entry := range entries {
		if entry.Role != model.RoleAssistant {
			continue
		}
		if entry.IsError {
			failed++
			continue
		}
		counts[entry.Source]++
	}

	var sb strings.Builder
	sb.WriteString("## Session Information\n\n")
	sb.WriteString(fmt.Sprintf("- **Started**: %s\n", formatTimestamp(entries[0].Timestamp)))
	sb.WriteString(fmt.Sprintf("- **Local answers**: %d\n", counts[router.TierNone]))
	for _, t := range router.Tiers() {
		sb.WriteString(fmt.Sprintf("- **%s**: %d\n", t.Label(), counts[t]))
	}
	sb.WriteString(fmt.Sprintf("- **Failed**: %d\n", failed))
	return sb.String()
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
