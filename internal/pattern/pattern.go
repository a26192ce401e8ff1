package pattern

import (
	"fmt"
	"strings"
)

// MatchResult is the outcome of matching a report against a button spec.
type MatchResult int

const (
	NoMatch MatchResult = iota
	IsPress
	IsRelease
)

// Spec is a configured call-button signature: a single press pattern, or a
// press/release pair serialized as "press,release". Only the press half
// triggers; the release half is recognized so it can be consumed silently.
type Spec struct {
	Press   string
	Release string
}

// HasRelease reports whether the spec carries a release half.
func (s *Spec) HasRelease() bool {
	return s != nil && s.Release != ""
}

// String returns the serialized form accepted by ParseSpec.
func (s *Spec) String() string {
	if s == nil {
		return ""
	}
	if s.Release == "" {
		return s.Press
	}
	return s.Press + "," + s.Release
}

// ParseSpec parses a configured pattern string. Input halves may use any mix
// of spacing, dashes and case; they are normalized on the way in. An empty
// string yields a nil spec (auto-detection mode).
func ParseSpec(raw string) (*Spec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	switch len(parts) {
	case 1:
		press := Normalize(parts[0])
		if press == "" {
			return nil, fmt.Errorf("empty press pattern in %q", raw)
		}
		return &Spec{Press: press}, nil
	case 2:
		press := Normalize(parts[0])
		release := Normalize(parts[1])
		if press == "" {
			return nil, fmt.Errorf("empty press pattern in %q", raw)
		}
		return &Spec{Press: press, Release: release}, nil
	default:
		return nil, fmt.Errorf("pattern %q has more than two comma-separated parts", raw)
	}
}

// Normalize canonicalizes a hex pattern: strips spaces and dashes, uppercases,
// and re-inserts a dash every two hex characters. "02-05-00", "02 05 00" and
// "020500" all normalize to "02-05-00". Normalizing an already normalized
// pattern is a no-op.
func Normalize(raw string) string {
	stripped := strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(raw)))
	if stripped == "" {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(stripped); i += 2 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 2
		if end > len(stripped) {
			end = len(stripped)
		}
		b.WriteString(stripped[i:end])
	}
	return b.String()
}

// NormalizeBytes formats a raw report payload in canonical form.
func NormalizeBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	const hexDigits = "0123456789ABCDEF"
	b := make([]byte, 0, len(data)*3-1)
	for i, v := range data {
		if i > 0 {
			b = append(b, '-')
		}
		b = append(b, hexDigits[v>>4], hexDigits[v&0x0F])
	}
	return string(b)
}

// Match decides whether a normalized candidate is the spec's press or release
// pattern. The release half is checked first: a release pattern that happens
// to be a prefix of the press pattern must still be consumed as a release,
// never double-trigger.
func (s *Spec) Match(candidate string) MatchResult {
	if s == nil || candidate == "" {
		return NoMatch
	}
	if s.Release != "" && equivalent(candidate, s.Release) {
		return IsRelease
	}
	if equivalent(candidate, s.Press) {
		return IsPress
	}
	return NoMatch
}

// equivalent reports whether two normalized patterns denote the same report,
// tolerating trailing zero padding differences between firmware revisions:
// equal, or one a proper prefix of the other at an octet boundary.
func equivalent(a, b string) bool {
	if a == b {
		return true
	}
	if strings.HasPrefix(a, b+"-") || strings.HasPrefix(b, a+"-") {
		return true
	}
	return false
}
