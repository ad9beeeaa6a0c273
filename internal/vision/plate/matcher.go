package plate

import (
	"errors"
	"fmt"
)

// Match failures. ErrMalformedReading means the reading never reached
// matching; ErrNoMatch means no known plate was close enough.
var (
	ErrMalformedReading = errors.New("plate: reading failed format validation")
	ErrNoMatch          = errors.New("plate: no known plate within threshold")
)

// confusions holds glyph pairs OCR engines routinely swap. Substituting
// across a pair costs the matcher's confusion cost instead of 1.
var confusions = map[byte]byte{
	'0': 'O',
	'1': 'I',
	'5': 'S',
	'7': 'Z',
	'8': 'B',
}

func confusable(a, b byte) bool {
	return confusions[a] == b || confusions[b] == a
}

// Distance computes the Levenshtein distance between two strings with
// confusable substitutions at confusionCost. Insertions and deletions
// always cost 1.
func Distance(a, b string, confusionCost int) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}

	for i := 0; i < len(a); i++ {
		current[0] = i + 1
		for j := 0; j < len(b); j++ {
			cost := 1
			switch {
			case a[i] == b[j]:
				cost = 0
			case confusable(a[i], b[j]):
				cost = confusionCost
			}

			insertion := previous[j+1] + 1
			deletion := current[j] + 1
			substitution := previous[j] + cost

			best := insertion
			if deletion < best {
				best = deletion
			}
			if substitution < best {
				best = substitution
			}
			current[j+1] = best
		}
		previous, current = current, previous
	}

	return previous[len(b)]
}

// MatcherConfig holds tuning for a Matcher.
type MatcherConfig struct {
	KnownPlates   []string // canonical plates to reconcile against; empty accepts readings as-is
	Threshold     int      // maximum acceptable distance for a known-plate match
	ConfusionCost int      // substitution cost across a confusable pair
	Format        Format
}

// DefaultMatcherConfig returns production-default matcher parameters.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		Threshold:     2,
		ConfusionCost: 0,
		Format:        FormatEU,
	}
}

// Matcher reconciles OCR readings against a known-plate list. Instances
// are immutable and safe for concurrent use.
type Matcher struct {
	known         []string
	threshold     int
	confusionCost int
	format        Format
}

// NewMatcher creates a matcher. Known plates are canonicalized once.
func NewMatcher(cfg MatcherConfig) *Matcher {
	known := make([]string, 0, len(cfg.KnownPlates))
	for _, p := range cfg.KnownPlates {
		if c := CanonicalizeKnown(p); c != "" {
			known = append(known, c)
		}
	}
	return &Matcher{
		known:         known,
		threshold:     cfg.Threshold,
		confusionCost: cfg.ConfusionCost,
		format:        cfg.Format,
	}
}

// Result is an accepted reading: the canonical text and its distance to
// the accepted candidate. Distance is 0 when no known list is
// configured.
type Result struct {
	Text     string
	Distance int
}

// Match normalizes and validates a raw reading, then finds the closest
// known plate. With no known list the validated reading itself is the
// result. The lowest-distance candidate wins; the earlier entry wins
// ties. Candidates beyond the threshold yield ErrNoMatch.
func (m *Matcher) Match(raw string) (Result, error) {
	text := Normalize(raw)
	if err := ValidateFormat(text, m.format); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}

	if len(m.known) == 0 {
		return Result{Text: text}, nil
	}

	best := -1
	bestPlate := ""
	for _, k := range m.known {
		d := Distance(text, k, m.confusionCost)
		if best == -1 || d < best {
			best = d
			bestPlate = k
		}
	}

	if best > m.threshold {
		return Result{}, fmt.Errorf("%w: %q best distance %d", ErrNoMatch, text, best)
	}
	return Result{Text: bestPlate, Distance: best}, nil
}
