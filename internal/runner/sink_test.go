package runner

import (
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/Paintersrp/orun/internal/textenc"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		limit int
		want  string
	}{
		{name: "disabled", line: "hello world", limit: 0, want: "hello world"},
		{name: "negative", line: "hello world", limit: -1, want: "hello world"},
		{name: "fits", line: "hello", limit: 5, want: "hello"},
		{name: "cut", line: "hello world", limit: 5, want: "hello..."},
		{name: "wide runes", line: "日本語テキスト", limit: 4, want: "日本語テ..."},
		{name: "combining mark", line: "cafe\u0301 au lait", limit: 4, want: "cafe\u0301..."},
		{name: "empty", line: "", limit: 3, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truncate(tc.line, tc.limit); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStreamReaderCapturesFullLinesAndEchoesTruncated(t *testing.T) {
	codec, err := textenc.New("utf-8", textenc.PolicySurrogateEscape)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	long := strings.Repeat("y", 80)

	var captured []string
	var echoed []string
	r := &streamReader{
		stream:       StreamStdout,
		codec:        codec,
		displayLimit: 50,
		sink:         SinkFunc(func(line string) { echoed = append(echoed, line) }),
		capture:      func(_ string, line string) { captured = append(captured, line) },
		logger:       log.New(io.Discard),
	}
	r.drain(strings.NewReader("first\n" + long + "\nlast"))

	if len(captured) != 3 || captured[1] != long || captured[2] != "last" {
		t.Fatalf("expected full captured lines, got %q", captured)
	}
	if echoed[1] != long[:50]+Ellipsis {
		t.Fatalf("expected truncated echo, got %q", echoed[1])
	}
	if r.lines != 3 {
		t.Fatalf("expected 3 lines counted, got %d", r.lines)
	}
}

func TestStreamReaderWithoutSink(t *testing.T) {
	codec, err := textenc.New("utf-8", textenc.PolicyStrict)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	var captured []string
	r := &streamReader{
		stream:       StreamStderr,
		codec:        codec,
		displayLimit: 50,
		capture:      func(_ string, line string) { captured = append(captured, line) },
		logger:       log.New(io.Discard),
	}
	r.drain(strings.NewReader("bad \xff byte\nok\n"))

	if len(captured) != 2 || captured[0] != "bad � byte" || captured[1] != "ok" {
		t.Fatalf("expected degraded decode, got %q", captured)
	}
	if !r.degraded {
		t.Fatalf("expected reader to record strict degradation")
	}
}

func TestLockPairKeepsNilSinks(t *testing.T) {
	out, errSink := lockPair(nil, nil)
	if out != nil || errSink != nil {
		t.Fatalf("expected nil sinks to stay nil")
	}

	var lines []string
	out, errSink = lockPair(SinkFunc(func(l string) { lines = append(lines, "out:"+l) }), SinkFunc(func(l string) { lines = append(lines, "err:"+l) }))
	out.Write("a")
	errSink.Write("b")
	if strings.Join(lines, ",") != "out:a,err:b" {
		t.Fatalf("unexpected sink writes %q", lines)
	}
}
