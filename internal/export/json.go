// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/tierchat/internal/model"
)

// JSONExporter exports transcripts to JSON. It always writes every entry
// field; the options only control the envelope.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	Generator string        `json:"generator,omitempty"`
	Exported  *time.Time    `json:"exported,omitempty"`
	Entries   []model.Entry `json:"entries"`
}

// Export converts entries to indented JSON.
func (e *JSONExporter) Export(entries []model.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTranscript
	}
	doc := jsonTranscript{Entries: entries}
	if e.options.IncludeMetadata {
		now := time.Now().UTC()
		doc.Generator = "tierchat"
		doc.Exported = &now
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
