package stream_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedlens/runwatch/pkg/stream"
	"github.com/fedlens/runwatch/run"
)

var (
	line1 = `{"round":1,"global_loss":0.9,"client_train":{"c1":1,"c2":1,"c3":1},"client_val":{"c1":1,"c2":1,"c3":1},"run_id":"abc"}`
	line2 = `{"round":2,"global_loss":0.7,"client_train":{"c1":0.8,"c2":0.9,"c3":0.7},"client_val":{"c1":0.9,"c2":0.8,"c3":0.9},"run_id":"abc"}`
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeAll(t *testing.T, chunks ...string) []run.RoundRecord {
	t.Helper()

	d := stream.NewDecoder(testLogger())
	var records []run.RoundRecord
	for _, c := range chunks {
		records = append(records, d.Feed([]byte(c))...)
	}
	d.Close()

	return records
}

func TestDecoderChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	text := line1 + "\n" + line2 + "\n"
	want := decodeAll(t, text)
	require.Len(t, want, 2)

	// Splitting the same text at any byte offset must not change the result.
	for offset := 1; offset < len(text); offset++ {
		got := decodeAll(t, text[:offset], text[offset:])
		assert.Equal(t, want, got, "split at offset %d", offset)
	}

	// One byte per chunk.
	chunks := make([]string, 0, len(text))
	for i := range text {
		chunks = append(chunks, text[i:i+1])
	}
	assert.Equal(t, want, decodeAll(t, chunks...))
}

func TestDecoderMalformedLineDropped(t *testing.T) {
	t.Parallel()

	text := line1 + "\n" + "{not json at all\n" + line2 + "\n"

	d := stream.NewDecoder(testLogger())
	records := d.Feed([]byte(text))
	d.Close()

	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Round)
	assert.Equal(t, 2, records[1].Round)
	assert.Equal(t, 1, d.Dropped())
	assert.Equal(t, 2, d.Decoded())
}

func TestDecoderEmptyLinesSkipped(t *testing.T) {
	t.Parallel()

	records := decodeAll(t, "\n\r\n"+line1+"\n\n"+line2+"\n\n")
	require.Len(t, records, 2)
}

func TestDecoderResidualDiscardedOnClose(t *testing.T) {
	t.Parallel()

	d := stream.NewDecoder(testLogger())
	records := d.Feed([]byte(line1)) // no trailing newline
	assert.Empty(t, records)

	d.Close()
	assert.Zero(t, d.Decoded())

	// Closed decoder ignores further input.
	assert.Empty(t, d.Feed([]byte("\n")))
}

func TestDecoderRecordSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	mid := len(line1) / 2
	records := decodeAll(t, line1[:mid], line1[mid:]+"\n")
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Round)
	assert.InDelta(t, 0.9, records[0].GlobalLoss, 1e-9)
	assert.Equal(t, "abc", records[0].RunID)
	assert.Equal(t, map[string]float64{"c1": 1, "c2": 1, "c3": 1}, records[0].ClientTrain)
}

func TestConsumeOrderAndCompletion(t *testing.T) {
	t.Parallel()

	text := line1 + "\n" + line2 + "\n"
	d := stream.NewDecoder(testLogger())

	var rounds []int
	err := stream.Consume(context.Background(), iotest.OneByteReader(strings.NewReader(text)), d, func(rec run.RoundRecord) {
		rounds = append(rounds, rec.Round)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rounds)
}

func TestConsumeNilBody(t *testing.T) {
	t.Parallel()

	d := stream.NewDecoder(testLogger())
	err := stream.Consume(context.Background(), nil, d, func(run.RoundRecord) {
		t.Fatal("no records expected")
	})
	require.NoError(t, err)
	assert.Zero(t, d.Decoded())
}

func TestConsumeReadError(t *testing.T) {
	t.Parallel()

	r := io.MultiReader(strings.NewReader(line1+"\n"), iotest.ErrReader(io.ErrUnexpectedEOF))
	d := stream.NewDecoder(testLogger())

	var got []run.RoundRecord
	err := stream.Consume(context.Background(), r, d, func(rec run.RoundRecord) {
		got = append(got, rec)
	})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	// Everything decoded before the failure is still delivered.
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Round)
}
