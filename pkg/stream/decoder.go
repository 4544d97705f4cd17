package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/fedlens/runwatch/run"
)

const readChunkSize = 4 * 1024

// Decoder turns successive opaque chunks of a newline-delimited JSON stream
// into RoundRecords. Text that does not yet form a complete line is carried
// in a residual buffer, so a record split across chunk boundaries decodes
// the same as one delivered whole. A line that fails to parse is dropped
// and logged; it never aborts the stream.
//
// A Decoder is single-use: once Close is called the remaining residual is
// discarded and further chunks are ignored.
type Decoder struct {
	logger   *slog.Logger
	residual []byte
	decoded  int
	dropped  int
	closed   bool
}

func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Feed appends chunk to the residual buffer and returns the records decoded
// from every line the buffer now completes, in stream order.
func (d *Decoder) Feed(chunk []byte) []run.RoundRecord {
	if d.closed || len(chunk) == 0 {
		return nil
	}

	d.residual = append(d.residual, chunk...)

	var records []run.RoundRecord
	for {
		idx := bytes.IndexByte(d.residual, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(d.residual[:idx], "\r")
		d.residual = d.residual[idx+1:]

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var rec run.RoundRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			d.dropped++
			d.logger.Warn("Dropping malformed stream line",
				slog.Int("line_bytes", len(line)),
				slog.Any("error", err))

			continue
		}

		d.decoded++
		records = append(records, rec)
	}

	return records
}

// Close ends the stream. An incomplete trailing fragment is discarded, not
// parsed as a final record.
func (d *Decoder) Close() {
	if d.closed {
		return
	}
	if len(d.residual) > 0 {
		d.logger.Debug("Discarding incomplete stream residual",
			slog.Int("residual_bytes", len(d.residual)))
	}
	d.residual = nil
	d.closed = true
}

// Decoded reports how many records have been produced so far.
func (d *Decoder) Decoded() int {
	return d.decoded
}

// Dropped reports how many malformed lines have been discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Consume reads r in chunks until EOF, emitting each decoded record in
// arrival order. The decoder is closed on return regardless of outcome.
// A read error other than EOF is returned after everything decoded up to
// that point has been emitted.
func Consume(ctx context.Context, r io.Reader, d *Decoder, emit func(run.RoundRecord)) error {
	defer d.Close()

	if r == nil {
		return nil
	}

	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, rec := range d.Feed(buf[:n]) {
				emit(rec)
			}
		}
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}
	}
}
