package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/Paintersrp/orun/internal/cliutil"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

// resetEnv clears ORUN_* overrides and pins a UTF-8 locale.
func resetEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ORUN_CONFIG", "ORUN_ENCODING", "ORUN_ERRORS", "ORUN_DISPLAY_LIMIT", "ORUN_NOSPIN", "LC_CTYPE", "LANG"} {
		t.Setenv(key, "")
	}
	t.Setenv("LC_ALL", "C.UTF-8")
}

func executeRoot(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetEnv(t)
	return runRoot(t, args...)
}

func runRoot(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCmd()
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeProfile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orun.yaml")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestRunEchoesOutput(t *testing.T) {
	requireShell(t)
	stdout, stderr, err := executeRoot(t, "run", "--", "sh", "-c", "echo hello; echo oops >&2")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if stdout != "hello\n" {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, "hello\n")
	}
	if stderr != "oops\n" {
		t.Fatalf("unexpected stderr: got %q want %q", stderr, "oops\n")
	}
}

func TestRunSingleArgumentIsSplit(t *testing.T) {
	requireShell(t)
	stdout, _, err := executeRoot(t, "run", "echo 'two words' three")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if stdout != "two words three\n" {
		t.Fatalf("unexpected stdout: got %q", stdout)
	}
}

func TestRunReturnsChildExitCode(t *testing.T) {
	requireShell(t)
	_, _, err := executeRoot(t, "run", "--quiet", "--", "sh", "-c", "echo hidden; exit 3")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("expected code 3, got %d", exitErr.Code)
	}
}

func TestRunQuietSuppressesEcho(t *testing.T) {
	requireShell(t)
	stdout, stderr, err := executeRoot(t, "run", "-q", "--", "sh", "-c", "echo hidden; echo hidden >&2")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if stdout != "" || stderr != "" {
		t.Fatalf("expected no output, got stdout %q stderr %q", stdout, stderr)
	}
}

func TestRunMissingBinaryExits127(t *testing.T) {
	stdout, _, err := executeRoot(t, "run", "--", "orun-definitely-missing-binary")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 127 {
		t.Fatalf("expected exit code 127, got %v", err)
	}
	if !strings.Contains(stdout, "FAIL") {
		t.Fatalf("expected FAIL line on stdout, got %q", stdout)
	}
}

func TestRunJSONRecords(t *testing.T) {
	requireShell(t)
	stdout, _, err := executeRoot(t, "run", "--json", "--redact", "--", "sh", "-c",
		"echo started; echo 'error: token=abc123' >&2")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	var lines []cliutil.LineRecord
	var summary cliutil.SummaryRecord
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		raw := scanner.Bytes()
		if bytes.Contains(raw, []byte(`"returncode"`)) {
			if err := json.Unmarshal(raw, &summary); err != nil {
				t.Fatalf("decode summary: %v", err)
			}
			continue
		}
		var rec cliutil.LineRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			t.Fatalf("decode line record %q: %v", raw, err)
		}
		lines = append(lines, rec)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 line records, got %d: %q", len(lines), stdout)
	}
	byStream := map[string]cliutil.LineRecord{}
	for _, rec := range lines {
		byStream[rec.Stream] = rec
	}
	if got := byStream["stdout"]; got.Message != "started" || got.Level != "info" {
		t.Fatalf("unexpected stdout record: %+v", got)
	}
	errRec := byStream["stderr"]
	if errRec.Level != "error" {
		t.Fatalf("expected error level, got %q", errRec.Level)
	}
	if strings.Contains(errRec.Message, "abc123") {
		t.Fatalf("expected secret to be redacted, got %q", errRec.Message)
	}
	if summary.ReturnCode != 0 || summary.Run == "" || summary.Run != errRec.Run {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunEnvAndDirFlags(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	stdout, _, err := executeRoot(t, "run", "--env", "ORUN_TEST_VALUE=42", "--dir", dir, "--",
		"sh", "-c", `echo "$ORUN_TEST_VALUE"; pwd -P`)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}
	if stdout != "42\n"+want+"\n" {
		t.Fatalf("unexpected stdout: got %q", stdout)
	}
}

func TestRunUsesProfileDefaults(t *testing.T) {
	requireShell(t)
	path := writeProfile(t,
		"env:",
		"  GREETING: from-profile",
		"defaults:",
		"  displayLimit: 5",
	)
	stdout, _, err := executeRoot(t, "run", "-f", path, "--", "sh", "-c", `echo "$GREETING"`)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if stdout != "from-...\n" {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, "from-...\n")
	}
}

func TestRunMetricsFile(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "orun.prom")
	if _, _, err := executeRoot(t, "run", "-q", "--metrics-file", path, "--", "true"); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "orun_runs_total") {
		t.Fatalf("expected runs counter in metrics file, got %q", data)
	}
}

func TestRunRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "encoding", args: []string{"--encoding", "klingon-8"}, want: "encoding"},
		{name: "wide encoding", args: []string{"--encoding", "utf-16le"}, want: "not line oriented"},
		{name: "errors", args: []string{"--errors", "ignore-all"}, want: "errors"},
		{name: "spinner", args: []string{"--spinner=wobble"}, want: "spinner"},
		{name: "docker without container", args: []string{"--backend", "docker"}, want: "container"},
		{name: "env pair", args: []string{"--env", "NOVALUE"}, want: "KEY=VALUE"},
		{name: "json with tui", args: []string{"--json", "--tui"}, want: "cannot be combined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"run"}, tc.args...)
			args = append(args, "--", "true")
			_, _, err := executeRoot(t, args...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestConfigLintSuccess(t *testing.T) {
	path := writeProfile(t,
		"version: 1",
		"defaults:",
		"  encoding: utf-8",
		"  spinner: dots",
	)
	stdout, stderr, err := executeRoot(t, "config", "lint", "--file", path)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	want := path + ": OK\n"
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
	if stderr != "" {
		t.Fatalf("unexpected stderr output: %q", stderr)
	}
}

func TestConfigLintSchemaViolation(t *testing.T) {
	path := writeProfile(t,
		"defaults:",
		"  displayLimit: many",
	)
	stdout, stderr, err := executeRoot(t, "config", "lint", "--file", path)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if stdout != "" {
		t.Fatalf("expected empty stdout, got %q", stdout)
	}
	if !strings.Contains(stderr, "schema validation failed") {
		t.Fatalf("stderr does not mention schema failure: %q", stderr)
	}
	if !strings.Contains(stderr, "displayLimit") {
		t.Fatalf("stderr does not mention displayLimit: %q", stderr)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := writeProfile(t,
		"env:",
		"  API_TOKEN: hunter2",
		"  REGION: eu-west-1",
	)
	stdout, _, err := executeRoot(t, "config", "show", "-f", path)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if strings.Contains(stdout, "hunter2") {
		t.Fatalf("expected token to be masked, got %q", stdout)
	}
	if !strings.Contains(stdout, "eu-west-1") {
		t.Fatalf("expected plain value to be shown, got %q", stdout)
	}
	if !strings.Contains(stdout, "# source: "+path) {
		t.Fatalf("expected source comment, got %q", stdout)
	}

	stdout, _, err = executeRoot(t, "config", "show", "-f", path, "--reveal")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(stdout, "hunter2") {
		t.Fatalf("expected --reveal to print the token, got %q", stdout)
	}
}

func TestEncodingsCommand(t *testing.T) {
	resetEnv(t)
	t.Setenv("LC_ALL", "")
	t.Setenv("LANG", "en_US.ISO-8859-1")

	stdout, stderr, err := runRoot(t, "encodings", "latin-1", "klingon-8", "utf-16le")
	if err == nil {
		t.Fatalf("expected unusable encoding error")
	}
	if !strings.HasPrefix(stdout, "preferred: iso-8859-1\n") {
		t.Fatalf("expected preferred line, got %q", stdout)
	}
	if !strings.Contains(stdout, "latin-1: ok\n") {
		t.Fatalf("expected latin-1 to be known, got %q", stdout)
	}
	want := "klingon-8: unknown\nutf-16le: not line oriented\n"
	if stderr != want {
		t.Fatalf("unexpected stderr: got %q want %q", stderr, want)
	}
}

func TestRunDecodesWithLocaleCharset(t *testing.T) {
	requireShell(t)
	resetEnv(t)
	t.Setenv("LC_ALL", "en_US.ISO-8859-1")

	stdout, _, err := runRoot(t, "run", "--", "sh", "-c", `printf 'caf\351\n'`)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if stdout != "café\n" {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, "café\n")
	}
}

func TestExitErrorStatus(t *testing.T) {
	cases := map[int]int{3: 3, 127: 127, 255: 255, -1: 1, 256: 1, 0: 1}
	for code, want := range cases {
		if got := (&ExitError{Code: code}).Status(); got != want {
			t.Fatalf("code %d: expected status %d, got %d", code, want, got)
		}
	}
}
