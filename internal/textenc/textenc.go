// Package textenc converts between raw process bytes and Go strings using a
// named character encoding and an error-handling policy.
//
// Go strings may hold arbitrary bytes, so the surrogateescape policy keeps
// undecodable input bytes verbatim instead of substituting them. Encoding such
// a string back with the same policy restores the original bytes.
package textenc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Policy selects how undecodable or unencodable data is handled.
type Policy string

const (
	PolicyStrict          Policy = "strict"
	PolicyReplace         Policy = "replace"
	PolicyIgnore          Policy = "ignore"
	PolicySurrogateEscape Policy = "surrogateescape"
)

// DefaultEncoding is used when no encoding name is supplied.
const DefaultEncoding = "utf-8"

var (
	// ErrUnknownEncoding is returned when an encoding name cannot be resolved.
	ErrUnknownEncoding = errors.New("textenc: unknown encoding")
	// ErrUnknownPolicy is returned for unrecognised policy names.
	ErrUnknownPolicy = errors.New("textenc: unknown errors policy")
	// ErrDecode reports invalid input under the strict policy.
	ErrDecode = errors.New("textenc: decode failed")
	// ErrEncode reports unencodable input under the strict policy.
	ErrEncode = errors.New("textenc: encode failed")
	// ErrNotLineOriented is returned for encodings whose newline is not the
	// single byte 0x0A, such as UTF-16. Output in them cannot be split into
	// lines before decoding.
	ErrNotLineOriented = errors.New("textenc: encoding is not line oriented")
)

var aliases = map[string]string{
	"utf8":    "utf-8",
	"utf_8":   "utf-8",
	"u8":      "utf-8",
	"latin-1": "iso-8859-1",
	"latin1":  "iso-8859-1",
	"cp1252":  "windows-1252",
	"cp1251":  "windows-1251",
	"cp932":   "shift_jis",
	"sjis":    "shift_jis",
}

// ParsePolicy validates a policy name. An empty name selects surrogateescape.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PolicySurrogateEscape, nil
	case PolicyStrict, PolicyReplace, PolicyIgnore, PolicySurrogateEscape:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Codec decodes and encodes text with a fixed encoding and policy.
// A Codec holds no per-call state and is safe for concurrent use.
type Codec struct {
	name   string
	enc    encoding.Encoding
	utf8   bool
	policy Policy
}

// New resolves name and returns a codec applying policy p.
func New(name string, p Policy) (*Codec, error) {
	if p == "" {
		p = PolicySurrogateEscape
	}
	if _, err := ParsePolicy(string(p)); err != nil {
		return nil, err
	}
	canonical := normalize(name)
	if canonical == "utf-8" {
		return &Codec{name: canonical, utf8: true, policy: p}, nil
	}
	enc, err := Lookup(canonical)
	if err != nil {
		return nil, err
	}
	if nl, err := enc.NewEncoder().Bytes([]byte{'\n'}); err != nil || !bytes.Equal(nl, []byte{'\n'}) {
		return nil, fmt.Errorf("%w: %q", ErrNotLineOriented, name)
	}
	return &Codec{name: canonical, enc: enc, policy: p}, nil
}

// Lookup resolves an encoding by IANA or WHATWG label.
func Lookup(name string) (encoding.Encoding, error) {
	canonical := normalize(name)
	for _, key := range []string{canonical, strings.ReplaceAll(canonical, "_", "-")} {
		if enc, err := ianaindex.IANA.Encoding(key); err == nil && enc != nil {
			return enc, nil
		}
		if enc, err := htmlindex.Get(key); err == nil && enc != nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Name returns the canonical encoding name.
func (c *Codec) Name() string { return c.name }

// Policy returns the configured errors policy.
func (c *Codec) Policy() Policy { return c.policy }

// WithPolicy returns a copy of c using policy p.
func (c *Codec) WithPolicy(p Policy) *Codec {
	dup := *c
	dup.policy = p
	return &dup
}

// Decode converts b to a string. The boolean reports whether any input was
// replaced, dropped or escaped.
func (c *Codec) Decode(b []byte) (string, bool, error) {
	if c.utf8 {
		return decodeUTF8(b, c.policy)
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		if c.policy == PolicyStrict {
			return "", true, fmt.Errorf("%w: %s: %v", ErrDecode, c.name, err)
		}
		return c.decodeLossy(b), true, nil
	}
	text := string(out)
	if !strings.ContainsRune(text, utf8.RuneError) {
		return text, false, nil
	}
	switch c.policy {
	case PolicyStrict:
		return "", true, fmt.Errorf("%w: %s: undecodable input", ErrDecode, c.name)
	case PolicyIgnore:
		return strings.ReplaceAll(text, string(utf8.RuneError), ""), true, nil
	default:
		return text, true, nil
	}
}

// decodeLossy decodes b with the codec's encoding, skipping one byte each
// time the decoder rejects its input. Skipped bytes become U+FFFD, or nothing
// under the ignore policy.
func (c *Codec) decodeLossy(b []byte) string {
	dec := c.enc.NewDecoder()
	dst := make([]byte, 4*len(b)+utf8.UTFMax)
	var sb strings.Builder
	for len(b) > 0 {
		nDst, nSrc, err := dec.Transform(dst, b, true)
		sb.Write(dst[:nDst])
		b = b[nSrc:]
		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortDst):
			dst = make([]byte, 2*len(dst))
		default:
			if len(b) == 0 {
				continue
			}
			if c.policy != PolicyIgnore {
				sb.WriteRune(utf8.RuneError)
			}
			b = b[1:]
			dec.Reset()
		}
	}
	return sb.String()
}

// Encode converts s into bytes of the codec's encoding.
func (c *Codec) Encode(s string) ([]byte, error) {
	if c.utf8 {
		return encodeUTF8(s, c.policy)
	}
	switch c.policy {
	case PolicyReplace:
		return encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(s))
	case PolicyIgnore, PolicySurrogateEscape:
		return c.encodeRunes(s)
	default:
		out, err := c.enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncode, c.name, err)
		}
		return out, nil
	}
}

// encodeRunes encodes rune by rune. Raw invalid bytes are passed through for
// surrogateescape; unencodable runes are dropped for ignore.
func (c *Codec) encodeRunes(s string) ([]byte, error) {
	enc := c.enc.NewEncoder()
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if c.policy == PolicySurrogateEscape {
				out = append(out, s[i])
			}
			i++
			continue
		}
		chunk, err := enc.String(s[i : i+size])
		if err != nil {
			if c.policy == PolicyIgnore {
				i += size
				continue
			}
			return nil, fmt.Errorf("%w: %s: rune %q", ErrEncode, c.name, r)
		}
		out = append(out, chunk...)
		i += size
	}
	return out, nil
}

func decodeUTF8(b []byte, p Policy) (string, bool, error) {
	if utf8.Valid(b) {
		return string(b), false, nil
	}
	switch p {
	case PolicyStrict:
		return "", true, fmt.Errorf("%w: utf-8: invalid byte at offset %d", ErrDecode, firstInvalid(b))
	case PolicySurrogateEscape:
		return string(b), true, nil
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			if p == PolicyReplace {
				sb.WriteRune(utf8.RuneError)
			}
			i++
			continue
		}
		sb.Write(b[i : i+size])
		i += size
	}
	return sb.String(), true, nil
}

func encodeUTF8(s string, p Policy) ([]byte, error) {
	if p == PolicySurrogateEscape || utf8.ValidString(s) {
		return []byte(s), nil
	}
	if p == PolicyStrict {
		return nil, fmt.Errorf("%w: utf-8: invalid byte at offset %d", ErrEncode, firstInvalid([]byte(s)))
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if p == PolicyReplace {
				out = append(out, '?')
			}
			i++
			continue
		}
		out = append(out, s[i:i+size]...)
		i += size
	}
	return out, nil
}

func firstInvalid(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

func normalize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return DefaultEncoding
	}
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}

// ToText decodes b using the named encoding and policy.
func ToText(b []byte, name string, p Policy) (string, error) {
	c, err := New(name, p)
	if err != nil {
		return "", err
	}
	text, _, err := c.Decode(b)
	return text, err
}

// ToBytes encodes s using the named encoding and policy.
func ToBytes(s string, name string, p Policy) ([]byte, error) {
	c, err := New(name, p)
	if err != nil {
		return nil, err
	}
	return c.Encode(s)
}

// PreferredEncoding derives the locale charset from LC_ALL, LC_CTYPE and LANG
// as returned by getenv, falling back to utf-8.
func PreferredEncoding(getenv func(string) string) string {
	if getenv == nil {
		return DefaultEncoding
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		value := strings.TrimSpace(getenv(key))
		if value == "" {
			continue
		}
		if value == "C" || value == "POSIX" {
			return "us-ascii"
		}
		dot := strings.IndexByte(value, '.')
		if dot < 0 {
			return DefaultEncoding
		}
		charset := value[dot+1:]
		if at := strings.IndexByte(charset, '@'); at >= 0 {
			charset = charset[:at]
		}
		if charset == "" {
			return DefaultEncoding
		}
		return normalize(charset)
	}
	return DefaultEncoding
}
