package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Paintersrp/orun/internal/runner"
)

// LineRecord is one captured output line ready for JSON encoding.
type LineRecord struct {
	Timestamp time.Time `json:"ts"`
	Run       string    `json:"run"`
	Stream    string    `json:"stream"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
}

// SummaryRecord describes a finished run.
type SummaryRecord struct {
	Timestamp  time.Time `json:"ts"`
	Run        string    `json:"run"`
	Command    []string  `json:"command"`
	ReturnCode int       `json:"returncode"`
	State      string    `json:"state"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// NewLineRecord builds a record for line read from stream. A level token in
// the line wins; otherwise stderr lines are warnings and stdout lines info.
func NewLineRecord(run, stream, line string) LineRecord {
	level := inferLogLevel(line)
	if level == "" {
		level = "info"
		if stream == runner.StreamStderr {
			level = "warn"
		}
	}
	return LineRecord{
		Timestamp: time.Now(),
		Run:       run,
		Stream:    stream,
		Level:     level,
		Message:   line,
	}
}

// NewSummaryRecord snapshots res. It is meant to be called after completion.
func NewSummaryRecord(res *runner.Result) SummaryRecord {
	code, _ := res.ReturnCode()
	rec := SummaryRecord{
		Timestamp:  time.Now(),
		Run:        res.ID,
		Command:    res.Command,
		ReturnCode: code,
		State:      res.State().String(),
		DurationMS: res.Duration().Milliseconds(),
	}
	if err := res.SpawnErr(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|warning|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn", "warning":
		return "warn"
	default:
		return "info"
	}
}

// JSONSink encodes each echoed line as a LineRecord. Encoding failures are
// reported to Errs.
type JSONSink struct {
	Enc    *json.Encoder
	Errs   io.Writer
	Run    string
	Stream string
	Redact bool
}

func (s JSONSink) Write(line string) {
	if s.Redact {
		line = RedactSecrets(line)
	}
	encode(s.Enc, s.Errs, NewLineRecord(s.Run, s.Stream, line))
}

// EncodeSummary writes the summary record for res.
func EncodeSummary(enc *json.Encoder, stderr io.Writer, res *runner.Result) {
	encode(enc, stderr, NewSummaryRecord(res))
}

func encode(enc *json.Encoder, stderr io.Writer, v any) {
	if enc == nil {
		return
	}
	if err := enc.Encode(v); err != nil && stderr != nil {
		fmt.Fprintf(stderr, "error: encode record: %v\n", err)
	}
}
