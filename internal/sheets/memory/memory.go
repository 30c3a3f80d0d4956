// Package memory keeps exported snapshots in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"profitdash/internal/core"
	"profitdash/internal/sheets"
)

var _ sheets.SnapshotExporter = (*Exporter)(nil)

// Exporter records every export keyed by tab title. Exporting to an existing
// tab overwrites it, as the Google exporter does.
type Exporter struct {
	mu   sync.Mutex
	tabs map[string][][]any
	// Err, when set, is returned by ExportSnapshot instead of exporting.
	Err error
}

func New() *Exporter {
	return &Exporter{tabs: make(map[string][][]any)}
}

func (e *Exporter) ExportSnapshot(_ context.Context, snap core.Snapshot) (string, error) {
	if err := snap.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return "", e.Err
	}

	title := sheets.TabTitle(snap)
	rows := sheets.Rows(snap)
	e.tabs[title] = rows
	return sheets.DataRange(title, rows)
}

// Tab returns the rows written to title.
func (e *Exporter) Tab(title string) ([][]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows, ok := e.tabs[title]
	return rows, ok
}

// Len returns the number of tabs written.
func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tabs)
}
