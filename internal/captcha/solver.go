package captcha

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/humanize"
	"github.com/trose/ice-locator-go/internal/types"
)

// RecheckFunc reports whether the challenge is gone after a bypass wait.
// A nil recheck means the caller cannot re-inspect the page; waits are then
// treated as successful, matching how interstitials usually clear.
type RecheckFunc func(ctx context.Context) bool

// Pipeline coordinates challenge detection, strategy selection, and solving.
// Challenges are appended to an in-memory history for statistics.
type Pipeline struct {
	detector   *Detector
	providers  []Provider
	history    *History
	strategies []Strategy
	enabled    bool // master switch for external solving
}

// NewPipeline assembles the CAPTCHA pipeline. Providers are tried in the
// order given. enabled gates external solving only; bypass and local
// strategies always run.
func NewPipeline(patterns *PatternManager, providers []Provider, enabled bool) *Pipeline {
	strategies := make([]Strategy, len(defaultStrategies))
	copy(strategies, defaultStrategies)

	// External-service strategies become viable once a configured provider
	// covers their variant.
	if enabled {
		for i := range strategies {
			if strategies[i].Enabled {
				continue
			}
			for _, p := range providers {
				if p.IsConfigured() && p.Supports(strategies[i].Variant) {
					strategies[i].Enabled = true
					break
				}
			}
		}
	}

	return &Pipeline{
		detector:   NewDetector(patterns),
		providers:  providers,
		history:    NewHistory(),
		strategies: strategies,
		enabled:    enabled,
	}
}

// Detect inspects a response body for challenges.
func (p *Pipeline) Detect(html, pageURL string) *Challenge {
	return p.detector.Detect(html, pageURL)
}

// History exposes the challenge history for statistics.
func (p *Pipeline) History() *History {
	return p.history
}

// HandleResponse is the primary entry: detect a challenge in the response
// and solve it if present. Returns (true, nil) for clean pages, (true,
// challenge) when a challenge was solved or bypassed, and (false, challenge)
// otherwise.
func (p *Pipeline) HandleResponse(ctx context.Context, html, pageURL, sessionID string, recheck RecheckFunc) (bool, *Challenge) {
	ch := p.Detect(html, pageURL)
	if ch == nil {
		return true, nil
	}
	ch.SessionID = sessionID

	err := p.Solve(ctx, ch, recheck)
	p.history.Record(ch)

	if err != nil {
		log.Warn().
			Err(err).
			Str("variant", string(ch.Variant)).
			Str("session_id", sessionID).
			Msg("Challenge not resolved")
		return false, ch
	}
	return true, ch
}

// Solve drives a detected challenge to a terminal state. Strategy order:
// bypass (wait-based), local (parsing, canned answers), external services.
func (p *Pipeline) Solve(ctx context.Context, ch *Challenge, recheck RecheckFunc) error {
	log.Info().
		Str("variant", string(ch.Variant)).
		Float64("confidence", ch.Confidence).
		Msg("Attempting to solve challenge")

	ch.Status = StatusSolving
	start := time.Now()
	finish := func(status Status) {
		ch.Status = status
		ch.SolveTime = time.Since(start)
	}

	// 1. Bypass strategies: score-based and interstitial variants often
	// clear themselves after a wait.
	if bypassed, err := p.tryBypass(ctx, ch, recheck); err != nil {
		finish(StatusFailed)
		return err
	} else if bypassed {
		finish(StatusBypassed)
		log.Info().
			Str("variant", string(ch.Variant)).
			Dur("solve_time", ch.SolveTime).
			Msg("Challenge bypassed")
		return nil
	}

	// 2. Local strategies.
	if solved := p.trySolveLocally(ch); solved {
		finish(StatusSolved)
		log.Info().
			Str("variant", string(ch.Variant)).
			Str("strategy", "local").
			Dur("solve_time", ch.SolveTime).
			Msg("Challenge solved")
		return nil
	}

	// 3. External services, in priority order.
	applicable := p.strategiesFor(ch.Variant)
	if p.enabled {
		for _, strategy := range applicable {
			if !strategy.Enabled {
				continue
			}
			solution, err := p.trySolveExternally(ctx, ch)
			if err != nil {
				log.Warn().Err(err).Str("variant", string(ch.Variant)).Msg("External solving failed")
				break
			}
			ch.Solution = solution
			finish(StatusSolved)
			log.Info().
				Str("variant", string(ch.Variant)).
				Str("strategy", "external").
				Dur("solve_time", ch.SolveTime).
				Msg("Challenge solved")
			return nil
		}
	}

	// A variant no strategy table entry covers is unsupported, not failed.
	// Everything else exhausted its strategies.
	if ch.Variant == Unknown || len(applicable) == 0 {
		finish(StatusUnsupported)
		return types.NewErrorRecord(types.KindCaptchaUnsolvable, ch.SessionID, types.ErrChallengeUnsupported)
	}

	finish(StatusFailed)
	return types.NewErrorRecord(types.KindCaptchaUnsolvable, ch.SessionID, types.ErrChallengeUnsolvable)
}

// tryBypass waits out variants that commonly self-resolve.
func (p *Pipeline) tryBypass(ctx context.Context, ch *Challenge, recheck RecheckFunc) (bool, error) {
	switch ch.Variant {
	case RecaptchaV3:
		// Score-based: give the score calculation time to settle.
		if !humanize.SleepWithContext(ctx, 3*time.Second) {
			return false, ctx.Err()
		}
		if recheck == nil {
			return true, nil
		}
		return recheck(ctx), nil

	case Cloudflare:
		// Interstitials clear after a delay; back off 5-10-20 seconds.
		for _, wait := range []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second} {
			if !humanize.SleepWithContext(ctx, wait) {
				return false, ctx.Err()
			}
			if recheck == nil {
				return true, nil
			}
			if recheck(ctx) {
				return true, nil
			}
		}
		return false, nil
	}

	return false, nil
}

// trySolveLocally answers challenges that need no external help.
func (p *Pipeline) trySolveLocally(ch *Challenge) bool {
	if ch.Variant != Text || ch.Question == "" {
		return false
	}

	if answer, ok := solveArithmetic(ch.Question); ok {
		ch.Solution = strconv.Itoa(answer)
		return true
	}

	question := strings.ToLower(strings.TrimSpace(ch.Question))
	for q, a := range cannedAnswers {
		if strings.Contains(question, q) {
			ch.Solution = a
			return true
		}
	}
	return false
}

// trySolveExternally dispatches to each configured provider in order until
// one returns a solution.
func (p *Pipeline) trySolveExternally(ctx context.Context, ch *Challenge) (string, error) {
	var lastErr error
	for _, provider := range p.providers {
		if !provider.IsConfigured() || !provider.Supports(ch.Variant) {
			continue
		}
		solution, err := provider.Solve(ctx, ch)
		if err != nil {
			log.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Str("variant", string(ch.Variant)).
				Msg("Provider failed, trying next")
			lastErr = err
			continue
		}
		return solution, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", types.ErrSolverNoProviders
}

// strategiesFor returns the enabled-or-not strategies for a variant,
// ordered by priority.
func (p *Pipeline) strategiesFor(v Variant) []Strategy {
	var out []Strategy
	for _, s := range p.strategies {
		if s.Variant == v {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// cannedAnswers is a tiny knowledge set for non-arithmetic text challenges.
var cannedAnswers = map[string]string{
	"what color is the sky":         "blue",
	"what is 2+2":                   "4",
	"what day comes after monday":   "tuesday",
	"what month comes before march": "february",
}

// arithmeticPatterns cover digit operands joined by symbolic or spelled-out
// operators.
var arithmeticPatterns = []struct {
	re *regexp.Regexp
	op byte
}{
	{regexp.MustCompile(`(\d+)\s*\+\s*(\d+)`), '+'},
	{regexp.MustCompile(`(\d+)\s*plus\s*(\d+)`), '+'},
	{regexp.MustCompile(`(\d+)\s*[-−]\s*(\d+)`), '-'},
	{regexp.MustCompile(`(\d+)\s*minus\s*(\d+)`), '-'},
	{regexp.MustCompile(`(\d+)\s*[*×x]\s*(\d+)`), '*'},
	{regexp.MustCompile(`(\d+)\s*times\s*(\d+)`), '*'},
	{regexp.MustCompile(`(\d+)\s*[/÷]\s*(\d+)`), '/'},
	{regexp.MustCompile(`(\d+)\s*divided\s+by\s*(\d+)`), '/'},
}

// solveArithmetic parses and evaluates a simple math question.
func solveArithmetic(question string) (int, bool) {
	q := strings.ToLower(question)
	for _, pattern := range arithmeticPatterns {
		m := pattern.re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		a, errA := strconv.Atoi(m[1])
		b, errB := strconv.Atoi(m[2])
		if errA != nil || errB != nil {
			continue
		}
		switch pattern.op {
		case '+':
			return a + b, true
		case '-':
			return a - b, true
		case '*':
			return a * b, true
		case '/':
			if b == 0 {
				return 0, false
			}
			return a / b, true
		}
	}
	return 0, false
}
