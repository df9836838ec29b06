package humanize

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func newTestTiming() *Timing {
	return NewTiming(rand.New(rand.NewSource(1)))
}

func TestDelayRanges(t *testing.T) {
	tm := newTestTiming()

	tests := []struct {
		name string
		fn   func() time.Duration
		min  time.Duration
		max  time.Duration
	}{
		{"pre-navigate", tm.PreNavigateDelay, 500 * time.Millisecond, 2 * time.Second},
		{"reading", tm.ReadingDelay, 2 * time.Second, 8 * time.Second},
		{"typing", tm.TypingDelay, 50 * time.Millisecond, 150 * time.Millisecond},
		{"pre-click", tm.PreClickDelay, 300 * time.Millisecond, time.Second},
		{"post-click", tm.PostClickDelay, 500 * time.Millisecond, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				got := tt.fn()
				if got < tt.min || got > tt.max {
					t.Fatalf("%s delay = %v, want between %v and %v", tt.name, got, tt.min, tt.max)
				}
			}
		})
	}
}

func TestEvalDelays(t *testing.T) {
	tm := newTestTiming()

	tests := []struct {
		complexity Complexity
		preMin     time.Duration
		preMax     time.Duration
		postMin    time.Duration
		postMax    time.Duration
	}{
		{Simple, 100 * time.Millisecond, 500 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond},
		{Medium, 300 * time.Millisecond, time.Second, 200 * time.Millisecond, 800 * time.Millisecond},
		{Complex, 800 * time.Millisecond, 2 * time.Second, 500 * time.Millisecond, 2 * time.Second},
		{Complexity("bogus"), 300 * time.Millisecond, time.Second, 200 * time.Millisecond, 800 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(string(tt.complexity), func(t *testing.T) {
			for i := 0; i < 100; i++ {
				pre, post := tm.EvalDelays(tt.complexity)
				if pre < tt.preMin || pre > tt.preMax {
					t.Fatalf("pre = %v, want between %v and %v", pre, tt.preMin, tt.preMax)
				}
				if post < tt.postMin || post > tt.postMax {
					t.Fatalf("post = %v, want between %v and %v", post, tt.postMin, tt.postMax)
				}
			}
		})
	}
}

func TestAttemptDelaysScale(t *testing.T) {
	tm := newTestTiming()

	for attempt := 0; attempt < 4; attempt++ {
		scale := time.Duration(attempt + 1)
		for i := 0; i < 50; i++ {
			got := tm.AttemptDelay(attempt)
			if got < scale*time.Second || got > scale*3*time.Second {
				t.Fatalf("AttemptDelay(%d) = %v out of range", attempt, got)
			}
			got = tm.BetweenAttemptsDelay(attempt)
			if got < scale*2*time.Second || got > scale*5*time.Second {
				t.Fatalf("BetweenAttemptsDelay(%d) = %v out of range", attempt, got)
			}
		}
	}
}

func TestRandomDuration(t *testing.T) {
	tests := []struct {
		name   string
		minMs  int
		maxMs  int
		minExp time.Duration
		maxExp time.Duration
	}{
		{"typical range", 100, 500, 100 * time.Millisecond, 500 * time.Millisecond},
		{"same min max", 200, 200, 200 * time.Millisecond, 200 * time.Millisecond},
		{"inverted range returns min", 500, 100, 500 * time.Millisecond, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				got := RandomDuration(tt.minMs, tt.maxMs)
				if got < tt.minExp || got > tt.maxExp {
					t.Errorf("RandomDuration(%d, %d) = %v, want between %v and %v",
						tt.minMs, tt.maxMs, got, tt.minExp, tt.maxExp)
				}
			}
		})
	}
}

func TestChance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	if Chance(rng, 0) {
		t.Error("Chance(0) fired")
	}
	if !Chance(rng, 1) {
		t.Error("Chance(1) did not fire")
	}

	hits := 0
	const rounds = 10000
	for i := 0; i < rounds; i++ {
		if Chance(rng, 0.3) {
			hits++
		}
	}
	ratio := float64(hits) / rounds
	if ratio < 0.25 || ratio > 0.35 {
		t.Errorf("Chance(0.3) hit ratio = %f", ratio)
	}
}

func TestSleepWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if SleepWithContext(ctx, 5*time.Second) {
		t.Error("expected interrupted sleep on canceled context")
	}
	if time.Since(start) > time.Second {
		t.Error("sleep did not observe cancellation promptly")
	}
}

func TestTypistPlan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	typist := NewTypist(NewTiming(rng), rng)

	keys := typist.Plan("maria garcia")

	// Every non-backspace, non-pause keystroke in order must spell the value
	// once corrections are applied.
	var typed []rune
	for _, k := range keys {
		switch {
		case k.Backspace:
			if len(typed) > 0 {
				typed = typed[:len(typed)-1]
			}
		case k.Rune != 0:
			typed = append(typed, k.Rune)
		}
	}
	if string(typed) != "maria garcia" {
		t.Errorf("replayed keystrokes = %q, want %q", string(typed), "maria garcia")
	}

	for i, k := range keys {
		if k.Delay < 0 {
			t.Errorf("keystroke %d has negative delay", i)
		}
	}
}

func TestTypistTypoRate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	typist := NewTypist(NewTiming(rng), rng)

	value := "abcdefghij"
	backspaces := 0
	const rounds = 1000
	for i := 0; i < rounds; i++ {
		for _, k := range typist.Plan(value) {
			if k.Backspace {
				backspaces++
			}
		}
	}

	// One backspace per typo, ~2% typo rate per character.
	perChar := float64(backspaces) / float64(rounds*len(value))
	if perChar < 0.005 || perChar > 0.05 {
		t.Errorf("typo rate per character = %f, want around 0.02", perChar)
	}
}
