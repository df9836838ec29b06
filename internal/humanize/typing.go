package humanize

import (
	"math/rand"
	"time"
)

// Typo behavior constants matching observed human error rates.
const (
	// typoProbability is the chance of a wrong character after each keystroke.
	typoProbability = 0.02
	// midFieldPauseProbability is the chance of a thinking pause inside a field.
	midFieldPauseProbability = 0.10
)

// Keystroke is a single simulated keyboard event.
type Keystroke struct {
	Rune      rune
	Backspace bool          // press backspace instead of typing Rune
	Delay     time.Duration // pause before this keystroke
}

// Typist plans humanized keystroke sequences for form filling.
// It is driven by an injected RNG so tests can replay sequences.
type Typist struct {
	timing *Timing
	rng    *rand.Rand
}

// NewTypist creates a typist sharing the given timing source.
func NewTypist(timing *Timing, rng *rand.Rand) *Typist {
	return &Typist{timing: timing, rng: rng}
}

// Plan expands a field value into a keystroke sequence with per-character
// delays, occasional typos followed by corrections, and mid-field pauses.
func (t *Typist) Plan(value string) []Keystroke {
	keys := make([]Keystroke, 0, len(value)+4)

	for _, r := range value {
		if Chance(t.rng, typoProbability) {
			// Wrong character first, then a correction with a longer pause
			// while the mistake is noticed.
			keys = append(keys,
				Keystroke{Rune: t.nearbyKey(r), Delay: t.timing.TypingDelay()},
				Keystroke{Backspace: true, Delay: t.timing.between(200, 500)},
			)
		}
		keys = append(keys, Keystroke{Rune: r, Delay: t.timing.TypingDelay()})

		if Chance(t.rng, midFieldPauseProbability) {
			keys = append(keys, Keystroke{Rune: 0, Delay: t.timing.between(200, 800)})
		}
	}

	return keys
}

// nearbyKey returns a plausible mistyped character for the intended rune.
func (t *Typist) nearbyKey(r rune) rune {
	neighbors, ok := keyboardNeighbors[r]
	if !ok || len(neighbors) == 0 {
		return rune('a' + t.rng.Intn(26))
	}
	return neighbors[t.rng.Intn(len(neighbors))]
}

// keyboardNeighbors maps lowercase letters to their QWERTY neighbors.
var keyboardNeighbors = map[rune][]rune{
	'a': {'q', 's', 'z'},
	'b': {'v', 'g', 'n'},
	'c': {'x', 'd', 'v'},
	'd': {'s', 'e', 'f', 'c'},
	'e': {'w', 'r', 'd'},
	'f': {'d', 'r', 'g', 'v'},
	'g': {'f', 't', 'h', 'b'},
	'h': {'g', 'y', 'j', 'n'},
	'i': {'u', 'o', 'k'},
	'j': {'h', 'u', 'k', 'm'},
	'k': {'j', 'i', 'l'},
	'l': {'k', 'o', 'p'},
	'm': {'n', 'j', 'k'},
	'n': {'b', 'h', 'm'},
	'o': {'i', 'p', 'l'},
	'p': {'o', 'l'},
	'q': {'w', 'a'},
	'r': {'e', 't', 'f'},
	's': {'a', 'w', 'd', 'x'},
	't': {'r', 'y', 'g'},
	'u': {'y', 'i', 'j'},
	'v': {'c', 'f', 'b'},
	'w': {'q', 'e', 's'},
	'x': {'z', 's', 'c'},
	'y': {'t', 'u', 'h'},
	'z': {'a', 's', 'x'},
}
