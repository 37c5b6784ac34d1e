// ABOUTME: Tests for the SQLite frame capture database
// ABOUTME: Covers creation, append order, JSONL import, paging and recording a source

package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/replay"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "capture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func frame(event, data string) replay.Frame {
	return replay.Frame{Event: event, Data: []byte(data)}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "capture.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Append(context.Background(), frame("onFromRadio", `{}`), "test")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAppendAndEntries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id1, err := db.Append(ctx, frame("onFromRadio", `{"n":1}`), "live")
	require.NoError(t, err)
	id2, err := db.Append(ctx, frame("onMyNodeInfo", `{"myNodeNum":5}`), "live")
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	entries, err := db.Entries(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "onFromRadio", entries[0].Frame.Event)
	assert.JSONEq(t, `{"n":1}`, string(entries[0].Frame.Data))
	assert.Equal(t, "live", entries[0].Source)
	assert.False(t, entries[0].CapturedAt.IsZero())

	after, err := db.Entries(ctx, id1, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "onMyNodeInfo", after[0].Frame.Event)
}

func TestAppend_EmptyDataStoredAsNull(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Append(context.Background(), replay.Frame{Event: "onFromRadio"}, "")
	require.NoError(t, err)

	f, err := db.Reader().Next(context.Background())
	require.NoError(t, err)
	v, err := f.Value()
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestImport(t *testing.T) {
	db := newTestDB(t)
	input := strings.Join([]string{
		`{"event":"onFromRadio","data":{"n":1}}`,
		`garbage`,
		`{"event":"onFromRadio","data":{"n":2}}`,
	}, "\n")

	stats, err := db.Import(context.Background(), replay.NewJSONLReader(strings.NewReader(input)), "file.jsonl")
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Imported: 2, Malformed: 1}, stats)

	n, err := db.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCursor_PagesInOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	frames := make([]replay.Frame, 0, pageSize+25)
	for i := 0; i < pageSize+25; i++ {
		frames = append(frames, frame("onFromRadio", fmt.Sprintf(`{"n":%d}`, i)))
	}
	_, err := db.Import(ctx, replay.NewSliceReader(frames...), "bulk")
	require.NoError(t, err)

	cur := db.Reader()
	for i := 0; i < pageSize+25; i++ {
		f, err := cur.Next(ctx)
		require.NoError(t, err, "frame %d", i)
		v, err := f.Value()
		require.NoError(t, err)
		n, _ := v.Get("n").AsInt()
		require.Equal(t, int64(i), n)
	}
	_, err = cur.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecord(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	src := replay.New(replay.Options{Events: []string{"onFromRadio", "onMessagePacket"}})

	assert.Equal(t, 2, db.Record(ctx, src, "session"))

	evt := rawevent.MustFromAny(map[string]any{"payload": []byte{1, 2}})
	f, err := replay.NewFrame("onFromRadio", evt)
	require.NoError(t, err)
	delivered, err := src.Emit(f)
	require.NoError(t, err)
	assert.True(t, delivered)

	got, err := db.Reader().Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "onFromRadio", got.Event)
	v, err := got.Value()
	require.NoError(t, err)
	b, ok := v.Get("payload").AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)
}
