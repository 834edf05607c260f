package cliutil

import "testing"

func TestRedactSecrets(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "connecting with DB_PASSWORD=hunter2", want: "connecting with DB_PASSWORD=[redacted]"},
		{in: `api_key: "abc123"`, want: `api_key: "[redacted]"`},
		{in: "Authorization: Bearer eyJhbGciOi.x.y", want: "Authorization: Bearer [redacted]"},
		{in: "GITHUB_TOKEN = ghp_123", want: "GITHUB_TOKEN = [redacted]"},
		{in: "nothing to hide here", want: "nothing to hide here"},
		{in: "", want: ""},
	}
	for _, tc := range tests {
		if got := RedactSecrets(tc.in); got != tc.want {
			t.Fatalf("RedactSecrets(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestRedactEnv(t *testing.T) {
	env := map[string]string{
		"AWS_SECRET_ACCESS_KEY": "xyz",
		"PATH":                  "/usr/bin",
		"EMPTY_TOKEN":           "",
	}
	got := RedactEnv(env)
	if got["AWS_SECRET_ACCESS_KEY"] != redactedPlaceholder {
		t.Fatalf("expected secret to be masked, got %q", got["AWS_SECRET_ACCESS_KEY"])
	}
	if got["PATH"] != "/usr/bin" {
		t.Fatalf("expected PATH to be kept, got %q", got["PATH"])
	}
	if got["EMPTY_TOKEN"] != "" {
		t.Fatalf("expected empty value to stay empty, got %q", got["EMPTY_TOKEN"])
	}
	if env["AWS_SECRET_ACCESS_KEY"] != "xyz" {
		t.Fatalf("expected input map to be untouched")
	}
	if RedactEnv(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}
