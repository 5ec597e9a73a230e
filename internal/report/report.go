// Package report accumulates the outcome of every conversation in a batch
// and renders it as a Markdown note.
package report

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"chatvault/internal/vault"
)

// Outcome is the category a conversation lands in.
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// Outcomes lists the categories in the order they are rendered.
var Outcomes = []Outcome{Created, Updated, Skipped, Failed}

// Skip reasons.
const (
	ReasonNoUpdates      = "no updates"
	ReasonNoChanges      = "no changes needed"
	ReasonArchiveSkipped = "archive already imported"
)

// Entry is one conversation's outcome.
type Entry struct {
	Outcome        Outcome `json:"outcome"`
	Archive        string  `json:"archive,omitempty"`
	ConversationID string  `json:"conversationId"`
	Title          string  `json:"title"`
	Path           string  `json:"path,omitempty"`
	CreateTime     int64   `json:"createTime"`
	UpdateTime     int64   `json:"updateTime"`
	NewMessages    int     `json:"newMessages,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	ErrorKind      string  `json:"errorKind,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// GlobalError is an archive-level problem or notice.
type GlobalError struct {
	Archive string `json:"archive"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Counts summarizes a report.
type Counts struct {
	Created      int `json:"created" yaml:"created"`
	Updated      int `json:"updated" yaml:"updated"`
	Skipped      int `json:"skipped" yaml:"skipped"`
	Failed       int `json:"failed" yaml:"failed"`
	GlobalErrors int `json:"globalErrors" yaml:"global_errors"`
}

// Report is write-once per batch: entries are accepted until the first
// Render, after which it is frozen.
type Report struct {
	id        string
	startedAt time.Time
	loc       *time.Location
	log       zerolog.Logger

	entries  map[Outcome][]Entry
	global   []GlobalError
	archives []string

	rendered string
	frozen   bool
}

// New starts a report for a batch beginning at startedAt.
func New(log zerolog.Logger, startedAt time.Time, loc *time.Location) *Report {
	if loc == nil {
		loc = time.UTC
	}
	id := uuid.NewString()
	return &Report{
		id:        id,
		startedAt: startedAt,
		loc:       loc,
		log:       log.With().Str("component", "report").Str("batch_id", id).Logger(),
		entries:   make(map[Outcome][]Entry),
	}
}

// ID is the batch run id.
func (r *Report) ID() string { return r.id }

func (r *Report) StartedAt() time.Time { return r.startedAt }

// Add records an outcome.
func (r *Report) Add(e Entry) {
	if r.frozen {
		r.log.Warn().Str("conversation_id", e.ConversationID).Str("outcome", string(e.Outcome)).Msg("Report already rendered; entry dropped")
		return
	}
	r.entries[e.Outcome] = append(r.entries[e.Outcome], e)
}

// AddGlobalError records an archive-level problem.
func (r *Report) AddGlobalError(archive, kind, message string) {
	if r.frozen {
		r.log.Warn().Str("archive", archive).Msg("Report already rendered; global error dropped")
		return
	}
	r.global = append(r.global, GlobalError{Archive: archive, Kind: kind, Message: message})
}

// AddArchive lists an archive among the batch's inputs.
func (r *Report) AddArchive(name string) {
	if r.frozen {
		return
	}
	r.archives = append(r.archives, name)
}

// Entries returns the entries of one category in insertion order.
func (r *Report) Entries(o Outcome) []Entry {
	return append([]Entry(nil), r.entries[o]...)
}

func (r *Report) GlobalErrors() []GlobalError {
	return append([]GlobalError(nil), r.global...)
}

func (r *Report) Counts() Counts {
	return Counts{
		Created:      len(r.entries[Created]),
		Updated:      len(r.entries[Updated]),
		Skipped:      len(r.entries[Skipped]),
		Failed:       len(r.entries[Failed]),
		GlobalErrors: len(r.global),
	}
}

// Frozen reports whether Render has been called.
func (r *Report) Frozen() bool { return r.frozen }

type frontMatter struct {
	Type      string   `yaml:"type"`
	BatchID   string   `yaml:"batch_id"`
	StartedAt string   `yaml:"started_at"`
	Archives  []string `yaml:"archives,omitempty"`
	Counts    Counts   `yaml:"counts"`
}

// Render freezes the report and returns its Markdown. Later calls return the
// same text.
func (r *Report) Render() string {
	if r.frozen {
		return r.rendered
	}
	r.frozen = true

	var b strings.Builder
	counts := r.Counts()

	fm, err := yaml.Marshal(frontMatter{
		Type:      "chatvault-import-report",
		BatchID:   r.id,
		StartedAt: r.startedAt.In(r.loc).Format(time.RFC3339),
		Archives:  r.archives,
		Counts:    counts,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to encode report front matter")
	} else {
		b.WriteString("---\n")
		b.Write(fm)
		b.WriteString("---\n")
	}

	fmt.Fprintf(&b, "# Import report %s\n\n", r.startedAt.In(r.loc).Format("2006-01-02 15:04:05"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Created: %d\n", counts.Created)
	fmt.Fprintf(&b, "- Updated: %d\n", counts.Updated)
	fmt.Fprintf(&b, "- Skipped: %d\n", counts.Skipped)
	fmt.Fprintf(&b, "- Failed: %d\n", counts.Failed)
	if counts.GlobalErrors > 0 {
		fmt.Fprintf(&b, "- Archive errors: %d\n", counts.GlobalErrors)
	}
	b.WriteString("\n")

	if len(r.global) > 0 {
		b.WriteString("## Archive errors\n\n")
		for _, g := range r.global {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", escapeCell(g.Archive), g.Kind, escapeCell(g.Message))
		}
		b.WriteString("\n")
	}

	for _, o := range Outcomes {
		if len(r.entries[o]) == 0 {
			continue
		}
		r.renderTable(&b, o)
	}

	r.rendered = b.String()
	return r.rendered
}

func (r *Report) renderTable(b *strings.Builder, o Outcome) {
	fmt.Fprintf(b, "## %s\n\n", heading(o))
	switch o {
	case Created:
		b.WriteString("| Title | Note | Created | Updated |\n|---|---|---|---|\n")
	case Updated:
		b.WriteString("| Title | Note | New messages | Updated |\n|---|---|---|---|\n")
	case Skipped:
		b.WriteString("| Title | Note | Reason | Updated |\n|---|---|---|---|\n")
	case Failed:
		b.WriteString("| Title | Conversation | Error | Updated |\n|---|---|---|---|\n")
	}
	for _, e := range r.entries[o] {
		var third string
		second := link(e.Path)
		switch o {
		case Created:
			third = r.timestamp(e.CreateTime)
		case Updated:
			third = fmt.Sprint(e.NewMessages)
		case Skipped:
			third = escapeCell(e.Reason)
		case Failed:
			second = escapeCell(e.ConversationID)
			third = escapeCell(strings.TrimSpace(e.ErrorKind + ": " + e.Error))
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", escapeCell(title(e.Title)), second, third, r.timestamp(e.UpdateTime))
	}
	b.WriteString("\n")
}

func (r *Report) timestamp(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).In(r.loc).Format("2006-01-02 15:04")
}

func heading(o Outcome) string {
	return strings.ToUpper(string(o[:1])) + string(o[1:])
}

func title(t string) string {
	if strings.TrimSpace(t) == "" {
		return "Untitled"
	}
	return t
}

// link renders a wiki link to a note path without its extension.
func link(p string) string {
	if p == "" {
		return ""
	}
	return "[[" + escapeCell(strings.TrimSuffix(p, ".md")) + "]]"
}

func escapeCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// FileName is the report's note name, stamped with the batch start time.
func (r *Report) FileName() string {
	return r.baseName() + ".md"
}

func (r *Report) baseName() string {
	return "import report " + r.startedAt.In(r.loc).Format("2006-01-02 150405")
}

// freePath picks the first name in folder no other report holds, adding
// " (n)" when batches start within the same second.
func (r *Report) freePath(ctx context.Context, v vault.Vault, folder string) (string, error) {
	base := r.baseName()
	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s (%d)", base, n)
		}
		p := vault.Clean(path.Join(folder, name+".md"))
		exists, err := v.Exists(ctx, p)
		if err != nil {
			return "", err
		}
		if !exists {
			return p, nil
		}
	}
}

// Write renders the report into folder. It never panics; failures are logged
// and returned so the caller can show a notice. The import the report
// describes is not affected.
func (r *Report) Write(ctx context.Context, v vault.Vault, folder string) (p string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("writing report panicked: %v", rec)
			r.log.Error().Interface("panic", rec).Msg("Report write panicked")
		}
	}()

	text := r.Render()

	if ferr := v.EnsureFolder(ctx, vault.Clean(folder)); ferr != nil {
		err = errors.Wrap(ferr, "create report folder")
		r.log.Error().Stack().Err(err).Str("folder", folder).Msg("Failed to write report")
		return "", err
	}
	p, perr := r.freePath(ctx, v, folder)
	if perr != nil {
		err = errors.Wrap(perr, "pick report name")
		r.log.Error().Stack().Err(err).Str("folder", folder).Msg("Failed to write report")
		return "", err
	}
	if werr := v.WriteText(ctx, p, text); werr != nil {
		err = errors.Wrap(werr, "write report")
		r.log.Error().Stack().Err(err).Str("path", p).Msg("Failed to write report")
		return "", err
	}
	r.log.Info().Str("path", p).Interface("counts", r.Counts()).Msg("Report written")
	return p, nil
}
