// Package journal implements the durable record log: an append-only,
// tab-delimited file of timing records shared across processes.
//
// Layout: a header row written once at file creation, then one row per
// logical record. Appends happen in batches under an exclusive
// cross-process lock; readers take the shared lock and must tolerate a
// trailing truncated row left by a crashed writer.
package journal

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/kiroku/internal/lock"
	"github.com/ashita-ai/kiroku/internal/model"
)

const (
	header    = "timestamp\tcontext_id\ttask_id\tstart_time\tend_time\tduration_seconds\tlabel\toutcome"
	numFields = 8

	// emptyField marks an absent optional value (end_time and
	// duration_seconds on non-terminal rows).
	emptyField = "-"
)

// fieldSanitizer strips the delimiter and row terminators out of
// free-text fields so a hostile label cannot corrupt the row format.
var fieldSanitizer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// Journal is the append-only record log at a fixed path.
type Journal struct {
	path   string
	locker lock.Locker
	logger *slog.Logger
}

// New creates a journal. The file is created lazily on first append.
func New(path string, locker lock.Locker, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{path: path, locker: locker, logger: logger}
}

// Path returns the log file path.
func (j *Journal) Path() string { return j.path }

// Append writes records as a single batch under the exclusive lock,
// preserving slice order. The header is written if the file is new.
func (j *Journal) Append(ctx context.Context, records []model.TimingRecord) error {
	if len(records) == 0 {
		return nil
	}

	guard, err := j.locker.Acquire(ctx, true)
	if err != nil {
		return fmt.Errorf("journal: acquire write lock: %w", err)
	}
	defer guard.Release() //nolint:errcheck // release error is non-actionable after a successful write

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // path comes from validated config
	if err != nil {
		return fmt.Errorf("journal: open log: %w", err)
	}
	defer f.Close() //nolint:errcheck // explicit Close below is the one that matters

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("journal: stat log: %w", err)
	}

	w := bufio.NewWriter(f)
	if info.Size() == 0 {
		if _, err := w.WriteString(header + "\n"); err != nil {
			return fmt.Errorf("journal: write header: %w", err)
		}
	}
	for i := range records {
		if _, err := w.WriteString(encodeRow(records[i]) + "\n"); err != nil {
			return fmt.Errorf("journal: write row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	return nil
}

// ReadAll parses every well-formed row under the shared lock. Rows
// that fail to parse (truncated tail after a crash, foreign garbage)
// are skipped with a warning rather than failing the read.
func (j *Journal) ReadAll(ctx context.Context) ([]model.TimingRecord, error) {
	guard, err := j.locker.Acquire(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("journal: acquire read lock: %w", err)
	}
	defer guard.Release() //nolint:errcheck // read-only path

	f, err := os.Open(j.path) //nolint:gosec // path comes from validated config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: open log: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var records []model.TimingRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if line == header {
				continue
			}
		}
		if line == "" {
			continue
		}
		rec, err := parseRow(line)
		if err != nil {
			j.logger.Warn("journal: skipping unparseable row", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("journal: scan log: %w", err)
	}
	return records, nil
}

func encodeRow(r model.TimingRecord) string {
	fields := [numFields]string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldSanitizer.Replace(r.ContextID),
		fieldSanitizer.Replace(r.TaskID),
		encodeTime(r.StartTime),
		encodeTime(r.EndTime),
		emptyField,
		fieldSanitizer.Replace(r.Label),
		string(r.Outcome),
	}
	if d, ok := r.DurationSeconds(); ok {
		fields[5] = strconv.FormatFloat(d, 'f', 6, 64)
	}
	return strings.Join(fields[:], "\t")
}

func parseRow(line string) (model.TimingRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != numFields {
		return model.TimingRecord{}, fmt.Errorf("journal: row has %d fields, want %d", len(fields), numFields)
	}

	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return model.TimingRecord{}, fmt.Errorf("journal: parse timestamp: %w", err)
	}
	start, err := parseTime(fields[3])
	if err != nil {
		return model.TimingRecord{}, fmt.Errorf("journal: parse start_time: %w", err)
	}
	end, err := parseTime(fields[4])
	if err != nil {
		return model.TimingRecord{}, fmt.Errorf("journal: parse end_time: %w", err)
	}

	return model.TimingRecord{
		Timestamp: ts,
		ContextID: fields[1],
		TaskID:    fields[2],
		StartTime: start,
		EndTime:   end,
		Label:     fields[6],
		Outcome:   model.Outcome(fields[7]),
	}, nil
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return emptyField
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (*time.Time, error) {
	if s == emptyField || s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
