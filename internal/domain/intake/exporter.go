package intake

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Observer receives per-record export statistics.
type Observer interface {
	ObserveRecord(fieldTests, tableTests int, empty bool)
}

// Options configures an export run.
type Options struct {
	Logger zerolog.Logger
	// LineEnding terminates every line; "\n" when empty.
	LineEnding string
	// AuditDuplicateKeys logs single-value keys defined by several documents
	// of the same record. The report itself is unaffected.
	AuditDuplicateKeys bool
	Observer           Observer
}

// Summary describes a finished (or aborted) export run.
type Summary struct {
	Pages        int
	Records      int
	EmptyRecords int
	FieldTests   int
	TableTests   int
	Duration     time.Duration
}

// Exporter writes one report line per form record.
type Exporter struct {
	log      zerolog.Logger
	eol      string
	audit    bool
	observer Observer
}

func NewExporter(opts Options) *Exporter {
	eol := opts.LineEnding
	if eol == "" {
		eol = "\n"
	}
	return &Exporter{
		log:      opts.Logger,
		eol:      eol,
		audit:    opts.AuditDuplicateKeys,
		observer: opts.Observer,
	}
}

// Export reads every record from src and writes the header followed by one
// line per record to w, in arrival order. The first source or write error
// ends the run; the summary reflects what was written until then.
func (e *Exporter) Export(ctx context.Context, src RecordSource, w io.Writer) (sum Summary, err error) {
	start := time.Now()
	defer func() { sum.Duration = time.Since(start) }()

	pager, err := src.Pager(ctx)
	if err != nil {
		return sum, fmt.Errorf("open record pager: %w", err)
	}

	if _, err := io.WriteString(w, Header+e.eol); err != nil {
		return sum, fmt.Errorf("write header: %w", err)
	}

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return sum, fmt.Errorf("read page %d: %w", sum.Pages+1, err)
		}
		sum.Pages++

		for _, rec := range page {
			row := Derive(rec)
			sum.Records++

			if e.audit {
				e.auditDuplicates(rec, sum.Records)
			}

			e.log.Info().Int("item", sum.Records).Msg("writing item")

			if _, err := io.WriteString(w, row.Line()+e.eol); err != nil {
				return sum, fmt.Errorf("write item %d: %w", sum.Records, err)
			}

			empty := rec == nil || len(rec.Documents) == 0
			if empty {
				sum.EmptyRecords++
			}
			sum.FieldTests += row.FieldTests
			sum.TableTests += row.TableTests
			if e.observer != nil {
				e.observer.ObserveRecord(row.FieldTests, row.TableTests, empty)
			}
		}
	}

	return sum, nil
}

func (e *Exporter) auditDuplicates(rec *FormRecord, item int) {
	for key, n := range DuplicateKeys(rec) {
		e.log.Warn().
			Int("item", item).
			Str("record_id", rec.ID).
			Str("key", key).
			Int("documents", n).
			Msg("field defined by multiple documents; first document wins")
	}
}
