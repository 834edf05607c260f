package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// resolveExtends loads path and every profile it extends, base first, and
// merges them into one document.
func resolveExtends(path string) (map[string]any, error) {
	return resolveChain(path, nil)
}

func resolveChain(path string, chain []string) (map[string]any, error) {
	if idx := indexOfPath(chain, path); idx >= 0 {
		cycle := append(append([]string{}, chain[idx:]...), path)
		return nil, fmt.Errorf("detected extends cycle: %s", strings.Join(cycle, " -> "))
	}
	chain = append(chain, path)

	doc, err := loadRawDocument(path, len(chain) == 1)
	if err != nil {
		return nil, err
	}
	absolutizePaths(path, doc)

	ref, err := extractExtends(path, doc)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		return doc, nil
	}

	basePath, err := resolveExtendsPath(path, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: extends %q: %w", path, ref, err)
	}
	base, err := resolveChain(basePath, chain)
	if err != nil {
		return nil, fmt.Errorf("%s: extends %q: %w", path, ref, err)
	}
	return mergeYAMLMaps(base, doc), nil
}

func loadRawDocument(path string, root bool) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		if root {
			return nil, fmt.Errorf("open profile: %w", err)
		}
		return nil, fmt.Errorf("open base profile: %w", err)
	}
	defer f.Close()

	var raw map[string]any
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	expandYAMLValues(raw)
	return raw, nil
}

func extractExtends(path string, raw map[string]any) (string, error) {
	value, ok := raw["extends"]
	delete(raw, "extends")
	if !ok || value == nil {
		return "", nil
	}
	ref, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s: extends must be a string", path)
	}
	return strings.TrimSpace(ref), nil
}

func resolveExtendsPath(parent, ref string) (string, error) {
	if looksLikeURL(ref) {
		return "", fmt.Errorf("remote profile %q is not supported", ref)
	}
	target := ref
	if !filepath.IsAbs(ref) {
		target = filepath.Join(filepath.Dir(parent), ref)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve profile path: %w", err)
	}
	return abs, nil
}

// absolutizePaths anchors envFromFile to the directory of the file that
// declares it, so a merged document does not depend on where each value came
// from.
func absolutizePaths(path string, doc map[string]any) {
	if v, ok := doc["envFromFile"].(string); ok && v != "" && !filepath.IsAbs(v) {
		doc["envFromFile"] = filepath.Clean(filepath.Join(filepath.Dir(path), v))
	}
}

func looksLikeURL(path string) bool {
	if strings.Contains(path, "://") {
		if u, err := url.Parse(path); err == nil && u.Scheme != "" {
			return true
		}
	}
	return false
}

// mergeYAMLMaps overlays src onto dst. Nested maps merge key by key; any
// other value in src replaces the one in dst.
func mergeYAMLMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if srcMap, ok := toStringMap(src[key]); ok {
			dstMap, _ := toStringMap(dst[key])
			dst[key] = mergeYAMLMaps(dstMap, srcMap)
			continue
		}
		dst[key] = src[key]
	}
	return dst
}

func toStringMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for k, v := range typed {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			converted[ks] = v
		}
		return converted, true
	default:
		return nil, false
	}
}

func expandYAMLValues(doc map[string]any) {
	for key, value := range doc {
		doc[key] = expandValue(value)
	}
}

func expandValue(value any) any {
	if m, ok := toStringMap(value); ok {
		expandYAMLValues(m)
		return m
	}
	switch typed := value.(type) {
	case []any:
		for i, elem := range typed {
			typed[i] = expandValue(elem)
		}
		return typed
	case string:
		return expandEnvWithDefault(typed)
	default:
		return value
	}
}

// expandEnvWithDefault expands $VAR and ${VAR}, plus ${VAR:-fallback} when
// VAR is unset or empty.
func expandEnvWithDefault(s string) string {
	return os.Expand(s, func(name string) string {
		if key, fallback, ok := strings.Cut(name, ":-"); ok {
			if v := os.Getenv(key); v != "" {
				return v
			}
			return fallback
		}
		return os.Getenv(name)
	})
}

func indexOfPath(paths []string, target string) int {
	for i, p := range paths {
		if p == target {
			return i
		}
	}
	return -1
}
