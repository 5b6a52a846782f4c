// Package report writes the records and failed-maps tables as delimited text.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/okian/tempusrecords/pkg/metrics"
)

// ErrWriteReport wraps any failure to produce a report file.
var ErrWriteReport = errors.New("write report")

// ErrUnknownTimeFormat is returned by ParseTimeFormat.
var ErrUnknownTimeFormat = errors.New("unknown time format")

// TimeFormat selects how personal_time is rendered.
type TimeFormat string

// Time formats.
const (
	// TimeSeconds renders seconds as the shortest exact decimal, e.g. 120.5.
	TimeSeconds TimeFormat = "seconds"
	// TimeClock renders HH:MM:SS:mmm, e.g. 00:02:00:500.
	TimeClock TimeFormat = "clock"
)

// ParseTimeFormat accepts "seconds", "clock" or "" (seconds).
func ParseTimeFormat(s string) (TimeFormat, error) {
	switch TimeFormat(s) {
	case "", TimeSeconds:
		return TimeSeconds, nil
	case TimeClock:
		return TimeClock, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTimeFormat, s)
}

// Table headers.
var (
	RecordsHeader = []string{"map_name", "tier", "map_rank", "personal_time", "personal_rank"}
	FailedHeader  = []string{"map_name", "tier", "map_rank"}
)

// Emitter serializes run results.
type Emitter struct {
	delimiter  rune
	timeFormat TimeFormat
}

// Option applies a configuration option to the Emitter.
type Option func(*Emitter)

// WithDelimiter sets the field separator. Default is ';'.
func WithDelimiter(d rune) Option {
	return func(e *Emitter) {
		if d != 0 {
			e.delimiter = d
		}
	}
}

// WithTimeFormat sets the personal_time rendering.
func WithTimeFormat(f TimeFormat) Option {
	return func(e *Emitter) {
		if f != "" {
			e.timeFormat = f
		}
	}
}

// New constructs an Emitter.
func New(opts ...Option) *Emitter {
	e := &Emitter{delimiter: ';', timeFormat: TimeSeconds}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Paths names the two output files.
type Paths struct {
	Records string
	Failed  string
}

// WriteFiles replaces both files with the run's tables. Both tables are
// staged in temporary siblings before either is renamed, so a failure while
// staging leaves the previous pair untouched and readers never see a partial
// table.
func (e *Emitter) WriteFiles(p Paths, res model.RunResult) error {
	records, err := stage(p.Records, func(w io.Writer) error { return e.EncodeRecords(w, res.Records) })
	if err != nil {
		metrics.RecordErrorByComponent("report", "records")
		return err
	}
	defer func() { _ = os.Remove(records) }()

	failed, err := stage(p.Failed, func(w io.Writer) error { return e.EncodeFailed(w, res.Failed) })
	if err != nil {
		metrics.RecordErrorByComponent("report", "failed")
		return err
	}
	defer func() { _ = os.Remove(failed) }()

	if err := os.Rename(records, p.Records); err != nil {
		metrics.RecordErrorByComponent("report", "records")
		return fmt.Errorf("%w: %s: %w", ErrWriteReport, p.Records, err)
	}
	metrics.UpdateReportRows("records", len(res.Records))

	if err := os.Rename(failed, p.Failed); err != nil {
		metrics.RecordErrorByComponent("report", "failed")
		return fmt.Errorf("%w: %s: %w", ErrWriteReport, p.Failed, err)
	}
	metrics.UpdateReportRows("failed", len(res.Failed))
	return nil
}

// EncodeRecords writes the records table with its header.
func (e *Emitter) EncodeRecords(w io.Writer, rows []model.ReportRow) error {
	cw := e.csvWriter(w)
	if err := cw.Write(RecordsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.MapName,
			strconv.Itoa(r.Tier),
			r.MapRank,
			e.formatTime(r.Time),
			strconv.Itoa(r.Rank),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeFailed writes the failed-maps table with its header.
func (e *Emitter) EncodeFailed(w io.Writer, rows []model.FailedMapRow) error {
	cw := e.csvWriter(w)
	if err := cw.Write(FailedHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.MapName, strconv.Itoa(r.Tier), r.MapRank}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *Emitter) csvWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = e.delimiter
	return cw
}

func (e *Emitter) formatTime(seconds float64) string {
	if e.timeFormat == TimeClock {
		return FormatClock(seconds)
	}
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// FormatClock renders seconds as HH:MM:SS:mmm, rounded to the millisecond.
// Hours are not wrapped at 24.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d:%03d", h, m, s, ms%1000)
}

// stage writes encode's output to a synced temporary file next to path and
// returns its name. The caller renames or removes it.
func stage(path string, encode func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	tmpName := tmp.Name()

	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %s: %w", ErrWriteReport, path, err)
	}
	if err := encode(tmp); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fail(err)
	}
	return tmpName, nil
}
