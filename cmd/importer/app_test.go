package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvault/internal/models"
	"chatvault/internal/reconcile"
	"chatvault/internal/report"
)

func TestPromptConfirmer(t *testing.T) {
	prev := models.ImportedArchive{FileName: "old.zip", ImportedAt: 1700000000}

	var out bytes.Buffer
	c := promptConfirmer(strings.NewReader("y\nno\n"), &out, time.UTC)

	assert.True(t, c.ConfirmReimport(context.Background(), "new.zip", prev))
	assert.False(t, c.ConfirmReimport(context.Background(), "new.zip", prev))
	assert.False(t, c.ConfirmReimport(context.Background(), "new.zip", prev), "EOF declines")
	assert.Contains(t, out.String(), "new.zip was already imported as old.zip on 2023-11-14 22:13")
}

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "a.zip")
	newer := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(older, []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("B"), 0o644))
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(older, stamp, stamp))

	inputs, err := readInputs([]string{newer, older})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "b.json", inputs[0].Name)
	assert.Equal(t, "a.zip", inputs[1].Name)
	assert.Equal(t, []byte("A"), inputs[1].Data)
	assert.True(t, inputs[1].ExportedAt.Equal(stamp))

	_, err = readInputs([]string{filepath.Join(dir, "missing.zip")})
	assert.Error(t, err)
}

func TestPrintOutcome(t *testing.T) {
	var out bytes.Buffer
	printOutcome(&out, reconcile.BatchOutcome{
		BatchID:    "b1",
		Counts:     report.Counts{Created: 2, Skipped: 1, GlobalErrors: 1},
		ReportPath: "Reports/import report.md",
	}, false)

	assert.Equal(t, "Batch b1: 2 created, 0 updated, 1 skipped, 0 failed, 1 archive errors\nReport: Reports/import report.md\n", out.String())

	out.Reset()
	printOutcome(&out, reconcile.BatchOutcome{BatchID: "b2"}, true)
	assert.Contains(t, out.String(), "Dry run: nothing was written.")
}
