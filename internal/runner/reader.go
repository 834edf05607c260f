package runner

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/Paintersrp/orun/internal/metrics"
	"github.com/Paintersrp/orun/internal/textenc"
)

const readBufferSize = 64 * 1024

// streamReader drains one output pipe line by line. Each complete line, and a
// trailing fragment without a newline, is decoded, captured and then echoed.
type streamReader struct {
	stream       string
	codec        *textenc.Codec
	displayLimit int
	sink         Sink
	capture      func(stream, line string)
	logger       *log.Logger

	lines    int
	degraded bool
}

func (r *streamReader) drain(src io.Reader) {
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}
	br := bufio.NewReaderSize(src, readBufferSize)
	for {
		chunk, err := br.ReadBytes('\n')
		if len(chunk) > 0 {
			r.emit(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.logger.Warn("read failed", "stream", r.stream, "err", err)
			}
			break
		}
	}
	metrics.AddLines(r.stream, r.lines)
}

func (r *streamReader) emit(raw []byte) {
	raw = bytes.TrimSuffix(raw, []byte{'\n'})
	raw = bytes.TrimSuffix(raw, []byte{'\r'})

	text, replaced, err := r.codec.Decode(raw)
	if err != nil {
		// strict decoding never aborts a read
		text, _, _ = r.codec.WithPolicy(textenc.PolicyReplace).Decode(raw)
		replaced = true
		if !r.degraded {
			r.degraded = true
			r.logger.Warn("undecodable output, substituting replacement characters",
				"stream", r.stream, "encoding", r.codec.Name(), "err", err)
		}
	}
	if replaced {
		metrics.IncDecodeReplacement()
	}

	r.lines++
	r.capture(r.stream, text)
	if r.sink != nil {
		r.sink.Write(Truncate(text, r.displayLimit))
	}
}
