package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a profile from path, merges any profiles it extends, validates
// the result against the profile schema and applies defaults.
func Load(path string) (*Profile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve profile path: %w", err)
	}

	merged, err := resolveExtends(absPath)
	if err != nil {
		return nil, err
	}
	if err := validateAgainstSchema(merged); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	// Re-encode the merged document so the strict decoder still rejects
	// anything the schema let through.
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%s: encode merged profile: %w", absPath, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	var doc Profile
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	doc.Path = absPath

	if doc.Workdir != "" && doc.Backend.Type != BackendDocker {
		doc.Workdir = resolveWorkdir(filepath.Dir(absPath), doc.Workdir)
	}

	if doc.EnvFromFile != "" {
		fileEnv, err := loadEnvFile(doc.EnvFromFile)
		if err != nil {
			return nil, fmt.Errorf("%s: envFromFile: %w", absPath, err)
		}
		// inline values win over the file
		for k, v := range doc.Env {
			fileEnv[k] = v
		}
		doc.Env = fileEnv
	}
	if len(doc.Env) == 0 {
		doc.Env = nil
	}

	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func resolveWorkdir(base, workdir string) string {
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

// loadEnvFile parses a dotenv file: KEY=VALUE lines, optional export prefix,
// double quotes with Go escapes, single quotes taken literally, and trailing
// comments on unquoted values.
func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		value, err := parseEnvValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %s on line %d: %w", path, key, lineNo, err)
		}
		values[key] = expandEnvWithDefault(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}

// parseEnvValue unquotes a dotenv value. A quoted value may be followed by a
// comment; an unquoted value ends at the first '#'.
func parseEnvValue(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	quote := value[0]
	if quote != '"' && quote != '\'' {
		if before, _, found := strings.Cut(value, "#"); found {
			value = strings.TrimSpace(before)
		}
		return value, nil
	}

	end := closingQuote(value, quote)
	if end < 0 {
		return "", errors.New("unmatched quote")
	}
	if rest := strings.TrimSpace(value[end+1:]); rest != "" && !strings.HasPrefix(rest, "#") {
		return "", fmt.Errorf("unexpected text after closing quote: %q", rest)
	}
	if quote == '\'' {
		return value[1:end], nil
	}
	return strconv.Unquote(value[:end+1])
}

func closingQuote(value string, quote byte) int {
	for i := 1; i < len(value); i++ {
		switch value[i] {
		case '\\':
			if quote == '"' {
				i++
			}
		case quote:
			return i
		}
	}
	return -1
}
