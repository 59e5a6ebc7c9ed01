package eventlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/metrics"
	"github.com/layer-3/planmint/ports"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "6WCrvPVzPcn6oWsiCgg4PWvgu3X9ytTJqNL39JwHhX8v"

func entry(typ core.EventType, txid string) core.EventLogEntry {
	return core.EventLogEntry{
		ID:             uuid.NewString(),
		Type:           typ,
		Wallet:         wallet,
		PlanID:         "10GB",
		Mint:           "GXsBcsscLxMRKLgwWWnKkUzuXdEXwr74NiSqJrBs21Mz",
		Quantity:       1,
		TransactionIDs: []string{txid},
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func logs(t *testing.T) map[string]ports.EventLog {
	dir := t.TempDir()

	fileLog, err := NewFileLog(filepath.Join(dir, "logs", "events.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fileLog.Close() })

	db, err := OpenDB("sqlite", filepath.Join(dir, "events.db"), logrus.New())
	require.NoError(t, err)
	sqlLog, err := NewSQLLog(db)
	require.NoError(t, err)

	return map[string]ports.EventLog{"file": fileLog, "sqlite": sqlLog}
}

func TestEventLogKeepsAppendOrder(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := entry(core.EventNormalMint, "tx-1")
			second := entry(core.EventSoulboundMint, "tx-2")
			third := entry(core.EventNormalMint, "tx-3")
			for _, e := range []core.EventLogEntry{first, second, third} {
				require.NoError(t, l.Append(ctx, e))
			}

			all, err := l.Entries(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, first.ID, all[0].ID)
			assert.Equal(t, second.ID, all[1].ID)
			assert.Equal(t, third.ID, all[2].ID)
			assert.Equal(t, []string{"tx-2"}, all[1].TransactionIDs)
			assert.True(t, first.Timestamp.Equal(all[0].Timestamp))

			mints, err := l.Entries(ctx, core.EventNormalMint)
			require.NoError(t, err)
			assert.Len(t, mints, 2)
		})
	}
}

func TestEventLogConcurrentAppends(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, l.Append(ctx, entry(core.EventBackendBurn, fmt.Sprintf("tx-%d", i))))
				}(i)
			}
			wg.Wait()

			all, err := l.Entries(ctx, core.EventBackendBurn)
			require.NoError(t, err)
			assert.Len(t, all, 20)
		})
	}
}

func TestFileLogSurvivesReopenAndTornLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	l, err := NewFileLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, entry(core.EventSoulboundMint, "tx-1")))
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"torn","type":"soul`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := NewFileLog(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Append(ctx, entry(core.EventSoulboundMint, "tx-2")))

	all, err := reopened.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"tx-1"}, all[0].TransactionIDs)
	assert.Equal(t, []string{"tx-2"}, all[1].TransactionIDs)
}

func TestEventLogRecordsTransactionOncePerType(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			recorded, err := l.Recorded(ctx, core.EventNormalMint, "tx-1")
			require.NoError(t, err)
			assert.False(t, recorded)

			require.NoError(t, l.Append(ctx, entry(core.EventNormalMint, "tx-1")))
			err = l.Append(ctx, entry(core.EventNormalMint, "tx-1"))
			assert.ErrorIs(t, err, core.ErrEventRecorded)

			// the same transaction under another type is a different record
			require.NoError(t, l.Append(ctx, entry(core.EventUserInitiatedBurn, "tx-1")))

			// entries without a transaction are never deduplicated
			bare := entry(core.EventSoulboundMint, "")
			bare.TransactionIDs = nil
			require.NoError(t, l.Append(ctx, bare))
			bare.ID = uuid.NewString()
			require.NoError(t, l.Append(ctx, bare))

			recorded, err = l.Recorded(ctx, core.EventNormalMint, "tx-1")
			require.NoError(t, err)
			assert.True(t, recorded)
			recorded, err = l.Recorded(ctx, core.EventBackendBurn, "tx-1")
			require.NoError(t, err)
			assert.False(t, recorded)

			all, err := l.Entries(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 4)
		})
	}
}

func TestFileLogRemembersRecordsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	l, err := NewFileLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, entry(core.EventNormalMint, "tx-1")))
	require.NoError(t, l.Close())

	reopened, err := NewFileLog(path)
	require.NoError(t, err)
	defer reopened.Close()

	recorded, err := reopened.Recorded(ctx, core.EventNormalMint, "tx-1")
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.ErrorIs(t, reopened.Append(ctx, entry(core.EventNormalMint, "tx-1")), core.ErrEventRecorded)
}

// faultyFile writes half of the next line and then fails
type faultyFile struct {
	*os.File
	failWrite    bool
	failTruncate bool
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.failWrite {
		f.failWrite = false
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errors.New("no space left on device")
	}
	return f.File.Write(p)
}

func (f *faultyFile) Truncate(size int64) error {
	if f.failTruncate {
		return errors.New("read-only file system")
	}
	return f.File.Truncate(size)
}

func corruptLines(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.EventLogCorruptLines.Write(&m))
	return m.GetCounter().GetValue()
}

func TestFileLogRollsBackFailedWrite(t *testing.T) {
	ctx := context.Background()
	l, err := NewFileLog(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Append(ctx, entry(core.EventNormalMint, "tx-1")))

	l.file = &faultyFile{File: l.file.(*os.File), failWrite: true}
	assert.Error(t, l.Append(ctx, entry(core.EventNormalMint, "tx-2")))
	require.NoError(t, l.Append(ctx, entry(core.EventNormalMint, "tx-3")))

	// the failed entry was never recorded and can be retried
	require.NoError(t, l.Append(ctx, entry(core.EventNormalMint, "tx-2")))

	before := corruptLines(t)
	all, err := l.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"tx-1"}, all[0].TransactionIDs)
	assert.Equal(t, []string{"tx-3"}, all[1].TransactionIDs)
	assert.Equal(t, []string{"tx-2"}, all[2].TransactionIDs)
	assert.Equal(t, before, corruptLines(t))
}

func TestFileLogStartsFreshLineWhenRollbackFails(t *testing.T) {
	ctx := context.Background()
	l, err := NewFileLog(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer l.Close()

	l.file = &faultyFile{File: l.file.(*os.File), failWrite: true, failTruncate: true}
	assert.Error(t, l.Append(ctx, entry(core.EventSoulboundMint, "tx-1")))
	require.NoError(t, l.Append(ctx, entry(core.EventSoulboundMint, "tx-2")))

	before := corruptLines(t)
	all, err := l.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"tx-2"}, all[0].TransactionIDs)
	assert.Equal(t, before+1, corruptLines(t), "the torn half line is counted")
}
