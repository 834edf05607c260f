package cliutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdruntime "runtime"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/Paintersrp/orun/internal/runner"
)

func TestNewLineRecordInfersLevel(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		message  string
		expected string
	}{
		{name: "errorToken", stream: runner.StreamStdout, message: "[ERROR] failed to start", expected: "error"},
		{name: "warnToken", stream: runner.StreamStdout, message: "WARN disk nearly full", expected: "warn"},
		{name: "warningToken", stream: runner.StreamStdout, message: "warning: deprecated flag", expected: "warn"},
		{name: "infoTokenOnStderr", stream: runner.StreamStderr, message: "info: listening", expected: "info"},
		{name: "stdoutDefault", stream: runner.StreamStdout, message: "build finished", expected: "info"},
		{name: "stderrDefault", stream: runner.StreamStderr, message: "Traceback (most recent call last):", expected: "warn"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := NewLineRecord("run-1", tc.stream, tc.message)
			if rec.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, rec.Level)
			}
			if rec.Stream != tc.stream || rec.Run != "run-1" || rec.Message != tc.message {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestJSONSinkEncodesOneRecordPerLine(t *testing.T) {
	var out bytes.Buffer
	var errBuf bytes.Buffer
	sink := JSONSink{Enc: json.NewEncoder(&out), Errs: &errBuf, Run: "abc", Stream: runner.StreamStderr, Redact: true}

	sink.Write("first")
	sink.Write("DB_PASSWORD=hunter2")

	if errBuf.Len() != 0 {
		t.Fatalf("unexpected stderr output: %s", errBuf.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
	var rec LineRecord
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}
	if rec.Message != "DB_PASSWORD="+redactedPlaceholder {
		t.Fatalf("expected redacted message, got %q", rec.Message)
	}
	if rec.Stream != runner.StreamStderr || rec.Run != "abc" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestEncodeSummary(t *testing.T) {
	if stdruntime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}

	res := runner.Run(context.Background(), []string{"/bin/sh", "-c", "exit 5"},
		runner.WriteToStdout(false), runner.WithLogger(log.New(io.Discard)))

	var out bytes.Buffer
	EncodeSummary(json.NewEncoder(&out), io.Discard, res)

	var rec SummaryRecord
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("failed to unmarshal summary: %v", err)
	}
	if rec.ReturnCode != 5 {
		t.Fatalf("expected returncode 5, got %d", rec.ReturnCode)
	}
	if rec.State != runner.StateComplete.String() {
		t.Fatalf("expected complete state, got %q", rec.State)
	}
	if rec.Run != res.ID {
		t.Fatalf("expected run %q, got %q", res.ID, rec.Run)
	}
	if rec.Error != "" {
		t.Fatalf("expected no error, got %q", rec.Error)
	}
}

func TestEncodeSummaryReportsSpawnError(t *testing.T) {
	res := runner.Run(context.Background(), []string{"nonexistent-binary-xyz"},
		runner.WriteToStdout(false), runner.WithLogger(log.New(io.Discard)))

	var out bytes.Buffer
	EncodeSummary(json.NewEncoder(&out), io.Discard, res)

	var rec SummaryRecord
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("failed to unmarshal summary: %v", err)
	}
	if rec.ReturnCode != runner.CodeNotFound {
		t.Fatalf("expected returncode %d, got %d", runner.CodeNotFound, rec.ReturnCode)
	}
	if !strings.Contains(rec.Error, "nonexistent-binary-xyz") {
		t.Fatalf("expected spawn error in summary, got %q", rec.Error)
	}
}
