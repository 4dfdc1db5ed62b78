package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/lock"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/testutil"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.log")
	return New(path, lock.NewMemLocker(time.Second), testutil.Logger())
}

func TestAppendReadRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	start := model.NewStartedRecord("build", "task-1", "compile target")
	term := start.Terminate(model.OutcomeCompleted, start.StartTime.Add(2*time.Second))

	require.NoError(t, j.Append(ctx, []model.TimingRecord{start}))
	require.NoError(t, j.Append(ctx, []model.TimingRecord{term}))

	got, err := j.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.OutcomeStarted, got[0].Outcome)
	assert.Nil(t, got[0].EndTime)
	_, ok := got[0].DurationSeconds()
	assert.False(t, ok, "started row must have no duration")

	assert.Equal(t, model.OutcomeCompleted, got[1].Outcome)
	assert.Equal(t, "task-1", got[1].TaskID)
	d, ok := got[1].DurationSeconds()
	require.True(t, ok)
	assert.InDelta(t, 2.0, d, 1e-6)
}

func TestHeaderWrittenOnce(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	rec := model.NewStartedRecord("a", "", "first")
	require.NoError(t, j.Append(ctx, []model.TimingRecord{rec}))
	require.NoError(t, j.Append(ctx, []model.TimingRecord{rec.Terminate(model.OutcomeFailed, time.Now())}))

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, header, lines[0])
	assert.Equal(t, 1, strings.Count(string(data), "timestamp\tcontext_id"))
}

func TestLabelSanitized(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	rec := model.NewStartedRecord("ctx", "", "label\twith\ntabs and newlines")
	require.NoError(t, j.Append(ctx, []model.TimingRecord{rec}))

	got, err := j.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "label with tabs and newlines", got[0].Label)
}

func TestReadTolerantOfTruncatedTail(t *testing.T) {
	// A writer crashing mid-row leaves a partial line; readers must
	// return every complete row and skip the fragment.
	j := newTestJournal(t)
	ctx := context.Background()

	rec := model.NewStartedRecord("build", "task-9", "work")
	require.NoError(t, j.Append(ctx, []model.TimingRecord{rec}))

	f, err := os.OpenFile(j.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2026-08-30T01:02:03Z\tbuild\ttask-10\t")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := j.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "task-9", got[0].TaskID)
}

func TestReadTolerantOfStartedOnlyRow(t *testing.T) {
	// A crash after the start row but before the terminal row is a
	// legal log state: readers see the dangling started row as-is.
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, []model.TimingRecord{model.NewStartedRecord("build", "orphan", "crashed work")}))

	got, err := j.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.OutcomeStarted, got[0].Outcome)
	assert.Nil(t, got[0].EndTime)
}

func TestReadMissingFileReturnsEmpty(t *testing.T) {
	j := newTestJournal(t)
	got, err := j.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendEmptyBatchIsNoop(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.Append(context.Background(), nil))
	_, err := os.Stat(j.Path())
	assert.True(t, os.IsNotExist(err), "empty append must not create the file")
}

func TestBatchOrderPreserved(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	var batch []model.TimingRecord
	for i := 0; i < 20; i++ {
		rec := model.NewStartedRecord("ctx", "", "unit")
		rec.TaskID = string(rune('a' + i))
		batch = append(batch, rec)
	}
	require.NoError(t, j.Append(ctx, batch))

	got, err := j.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 20)
	for i := range got {
		assert.Equal(t, batch[i].TaskID, got[i].TaskID)
	}
}
