// ABOUTME: Tests for the replay source and JSONL frame reader
// ABOUTME: Covers subscription, sequential delivery, malformed lines and cancellation

package replay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/meshwatch/internal/dispatch"
	"github.com/2389/meshwatch/internal/rawevent"
	"github.com/2389/meshwatch/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSource_Subscribe(t *testing.T) {
	src := New(Options{Events: []string{"onFromRadio", "onMessagePacket"}, Logger: quietLogger()})

	assert.Equal(t, []string{"onFromRadio", "onMessagePacket"}, src.Events())
	assert.True(t, src.Subscribe("onFromRadio", func(rawevent.Value) error { return nil }))
	assert.False(t, src.Subscribe("onPosition", func(rawevent.Value) error { return nil }))
}

func TestSource_DefaultEvents(t *testing.T) {
	src := New(Options{})
	assert.Equal(t, DefaultEvents, src.Events())
}

func TestSource_RunDeliversInOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"event":"onFromRadio","data":{"n":1}}`,
		``,
		`{"event":"onFromRadio","data":{"n":2}}`,
		`not json`,
		`{"event":"onPosition","data":{}}`,
		`{"data":{}}`,
		`{"event":"onFromRadio","data":{"n":3}}`,
	}, "\n")

	src := New(Options{Logger: quietLogger()})
	var got []int64
	src.Subscribe("onFromRadio", func(v rawevent.Value) error {
		n, _ := v.Get("n").AsInt()
		got = append(got, n)
		return nil
	})

	stats, err := src.Run(context.Background(), NewJSONLReader(strings.NewReader(input)))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.Equal(t, Stats{Frames: 4, Delivered: 3, Skipped: 1, Malformed: 2}, stats)
}

func TestSource_BadDataIsMalformed(t *testing.T) {
	src := New(Options{Logger: quietLogger()})
	src.Subscribe("onFromRadio", func(rawevent.Value) error { return nil })

	stats, err := src.Run(context.Background(), NewSliceReader(
		Frame{Event: "onFromRadio", Data: []byte(`{"payload":{"@bytes":"%%%"}}`)},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 0, stats.Delivered)
}

func TestSource_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := New(Options{Logger: quietLogger()})
	calls := 0
	src.Subscribe("onFromRadio", func(rawevent.Value) error {
		calls++
		cancel()
		return nil
	})

	f := Frame{Event: "onFromRadio", Data: []byte(`{}`)}
	_, err := src.Run(ctx, NewSliceReader(f, f, f))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestJSONLReader_LineNumbers(t *testing.T) {
	r := NewJSONLReader(strings.NewReader("\n\n{bad\n"))
	_, err := r.Next(context.Background())
	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.Contains(t, err.Error(), "line 3")

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteJSONL_RoundTrip(t *testing.T) {
	evt := rawevent.MustFromAny(map[string]any{
		"packet": map[string]any{"from": 16, "decoded": map[string]any{"payload": []byte("hi")}},
	})
	f, err := NewFrame(dispatch.FirehoseEvent, evt)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, f, f))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	back, err := NewJSONLReader(&buf).Next(context.Background())
	require.NoError(t, err)
	v, err := back.Value()
	require.NoError(t, err)
	payload, ok := v.Get("packet").Get("decoded").Get("payload").AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), payload)
}

// Replaying a firehose-only recording through the dispatcher fills the store.
func TestReplay_EndToEnd(t *testing.T) {
	st := store.New(store.Options{Logger: quietLogger()})
	d := dispatch.New(dispatch.Options{Sink: st, Logger: quietLogger()})
	src := New(Options{Logger: quietLogger()})
	d.Attach(src)

	evt := rawevent.MustFromAny(map[string]any{
		"decoded": map[string]any{"text": "hello"},
		"from":    0x10,
		"to":      0x20,
		"channel": 0,
		"portnum": 1,
	})
	f, err := NewFrame(dispatch.FirehoseEvent, evt)
	require.NoError(t, err)

	stats, err := src.Run(context.Background(), NewSliceReader(f))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delivered)

	texts := st.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "hello", texts[0].Text)
	assert.Equal(t, uint32(16), *texts[0].From)
	assert.Equal(t, uint32(32), *texts[0].To)
	assert.Equal(t, uint32(0), *texts[0].Channel)
}
