package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trose/ice-locator-go/internal/types"
)

// fakeProvider is a scriptable external solver for tests.
type fakeProvider struct {
	name       string
	configured bool
	supports   map[Variant]bool
	solution   string
	err        error
	calls      int
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) Supports(v Variant) bool {
	return f.supports[v]
}
func (f *fakeProvider) Solve(ctx context.Context, ch *Challenge) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.solution, nil
}

func newTestPipeline(t *testing.T, providers []Provider, enabled bool) *Pipeline {
	t.Helper()
	patterns, err := NewPatternManager("", false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(patterns.Close)
	return NewPipeline(patterns, providers, enabled)
}

func TestHandleResponseCleanPage(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	ok, ch := p.HandleResponse(context.Background(), "<html><body><h1>OK</h1></body></html>", "https://ex.com/ok", "s1", nil)
	if !ok {
		t.Error("clean page should succeed")
	}
	if ch != nil {
		t.Errorf("clean page produced a challenge: %+v", ch)
	}
	if p.History().Len() != 0 {
		t.Error("clean page must not be recorded in history")
	}
}

// TestRecaptchaV2SolverDisabled: detection succeeds, the strategy loop
// exhausts without an external solver, and the challenge fails.
func TestRecaptchaV2SolverDisabled(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	html := `<html><body>
		<div class="g-recaptcha" data-sitekey="K"></div>
		<script src="https://www.google.com/recaptcha/api.js"></script>
	</body></html>`

	ok, ch := p.HandleResponse(context.Background(), html, "https://ex.com/x", "s1", nil)
	if ok {
		t.Error("unsolved challenge must not report success")
	}
	if ch == nil {
		t.Fatal("challenge not detected")
	}
	if ch.Variant != RecaptchaV2 || ch.SiteKey != "K" {
		t.Errorf("challenge = %+v", ch)
	}
	if ch.Confidence < 0.5 {
		t.Errorf("confidence = %f, want >= 0.5", ch.Confidence)
	}
	if ch.Status != StatusFailed {
		t.Errorf("status = %s, want failed", ch.Status)
	}
	if ch.SessionID != "s1" {
		t.Errorf("session id = %q", ch.SessionID)
	}
}

func TestSolveTextCaptchaArithmetic(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	tests := []struct {
		question string
		want     string
	}{
		{"What is 3 + 4?", "7"},
		{"What is 10 minus 4?", "6"},
		{"Solve: 6 * 7", "42"},
		{"What is 9 divided by 3?", "3"},
		{"what is 5 plus 8", "13"},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			ch := &Challenge{Variant: Text, Question: tt.question, Status: StatusDetected}
			if err := p.Solve(context.Background(), ch, nil); err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if ch.Status != StatusSolved {
				t.Errorf("status = %s, want solved", ch.Status)
			}
			if ch.Solution != tt.want {
				t.Errorf("solution = %q, want %q", ch.Solution, tt.want)
			}
		})
	}
}

func TestSolveTextCaptchaCannedAnswer(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	ch := &Challenge{Variant: Text, Question: "What color is the sky?", Status: StatusDetected}
	if err := p.Solve(context.Background(), ch, nil); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if ch.Solution != "blue" {
		t.Errorf("solution = %q, want blue", ch.Solution)
	}
}

func TestSolveDivisionByZeroFails(t *testing.T) {
	if _, ok := solveArithmetic("what is 5 / 0"); ok {
		t.Error("division by zero must not produce an answer")
	}
}

func TestSolveRecaptchaV3Bypass(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	ch := &Challenge{Variant: RecaptchaV3, Status: StatusDetected}
	start := time.Now()
	if err := p.Solve(context.Background(), ch, nil); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if ch.Status != StatusBypassed {
		t.Errorf("status = %s, want bypassed", ch.Status)
	}
	if elapsed := time.Since(start); elapsed < 3*time.Second {
		t.Errorf("v3 bypass waited only %v, want >= 3s", elapsed)
	}
}

func TestSolveRecaptchaV3BypassRecheckStillPresent(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	// Challenge persists after the wait; v3 has no other local strategy, and
	// no external solver is enabled, so it fails.
	recheck := func(ctx context.Context) bool { return false }
	ch := &Challenge{Variant: RecaptchaV3, Status: StatusDetected}
	err := p.Solve(context.Background(), ch, recheck)
	if err == nil {
		t.Error("persistent v3 challenge should error")
	}
	if ch.Status != StatusFailed {
		t.Errorf("status = %s, want failed", ch.Status)
	}
}

func TestSolveUnknownVariantUnsupported(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	ch := &Challenge{Variant: Unknown, Status: StatusDetected}
	err := p.Solve(context.Background(), ch, nil)
	if err == nil {
		t.Fatal("unknown variant should error")
	}
	if ch.Status != StatusUnsupported {
		t.Errorf("status = %s, want unsupported", ch.Status)
	}
	var record *types.ErrorRecord
	if !errors.As(err, &record) || record.Kind != types.KindCaptchaUnsolvable {
		t.Errorf("error = %v, want captcha_unsolvable record", err)
	}
}

func TestSolveExternalProviderChain(t *testing.T) {
	failing := &fakeProvider{
		name:       "2captcha",
		configured: true,
		supports:   map[Variant]bool{RecaptchaV2: true},
		err:        errors.New("provider down"),
	}
	succeeding := &fakeProvider{
		name:       "capsolver",
		configured: true,
		supports:   map[Variant]bool{RecaptchaV2: true},
		solution:   "tok-123",
	}
	p := newTestPipeline(t, []Provider{failing, succeeding}, true)

	ch := &Challenge{Variant: RecaptchaV2, SiteKey: "K", PageURL: "https://ex.com", Status: StatusDetected}
	if err := p.Solve(context.Background(), ch, nil); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if ch.Status != StatusSolved {
		t.Errorf("status = %s, want solved", ch.Status)
	}
	if ch.Solution != "tok-123" {
		t.Errorf("solution = %q", ch.Solution)
	}
	if failing.calls != 1 || succeeding.calls != 1 {
		t.Errorf("provider call counts: %d, %d", failing.calls, succeeding.calls)
	}
}

func TestSolveSkipsUnconfiguredProviders(t *testing.T) {
	unconfigured := &fakeProvider{
		name:     "2captcha",
		supports: map[Variant]bool{RecaptchaV2: true},
		solution: "never",
	}
	p := newTestPipeline(t, []Provider{unconfigured}, true)

	ch := &Challenge{Variant: RecaptchaV2, Status: StatusDetected}
	if err := p.Solve(context.Background(), ch, nil); err == nil {
		t.Error("no configured provider should mean failure")
	}
	if unconfigured.calls != 0 {
		t.Error("unconfigured provider must not be called")
	}
	if ch.Status != StatusFailed {
		t.Errorf("status = %s, want failed", ch.Status)
	}
}

func TestSolveCancellation(t *testing.T) {
	p := newTestPipeline(t, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := &Challenge{Variant: Cloudflare, Status: StatusDetected}
	err := p.Solve(ctx, ch, nil)
	if err == nil {
		t.Error("canceled context should abort solving")
	}
	if ch.Status != StatusFailed {
		t.Errorf("status = %s, want failed after cancellation", ch.Status)
	}
}

func TestHistoryStats(t *testing.T) {
	h := NewHistory()

	h.Record(&Challenge{Variant: RecaptchaV2, Status: StatusSolved, SolveTime: 2 * time.Second})
	h.Record(&Challenge{Variant: RecaptchaV2, Status: StatusFailed, SolveTime: time.Second})
	h.Record(&Challenge{Variant: Cloudflare, Status: StatusBypassed, SolveTime: 5 * time.Second})
	h.Record(&Challenge{Variant: Text, Status: StatusUnsupported})

	stats := h.Stats()
	if stats.Total != 4 {
		t.Errorf("total = %d, want 4", stats.Total)
	}
	if stats.Solved != 2 {
		t.Errorf("solved = %d, want 2 (solved + bypassed)", stats.Solved)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("success rate = %f, want 0.5", stats.SuccessRate)
	}
	v2 := stats.ByVariant[string(RecaptchaV2)]
	if v2.Total != 2 || v2.Solved != 1 {
		t.Errorf("recaptcha_v2 stats = %+v", v2)
	}
	// Mean over the three timed challenges: (2+1+5)/3 seconds.
	if stats.AvgSolveTimeMs != 2666 {
		t.Errorf("avg solve time = %dms, want 2666", stats.AvgSolveTimeMs)
	}
}

func TestHistoryBound(t *testing.T) {
	h := NewHistory()
	for i := 0; i < maxHistoryEntries+50; i++ {
		h.Record(&Challenge{Variant: Text, Status: StatusSolved})
	}
	if h.Len() != maxHistoryEntries {
		t.Errorf("history length = %d, want %d", h.Len(), maxHistoryEntries)
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusDetected:    false,
		StatusSolving:     false,
		StatusSolved:      true,
		StatusFailed:      true,
		StatusBypassed:    true,
		StatusUnsupported: true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestParseVariant(t *testing.T) {
	if ParseVariant("recaptcha_v2") != RecaptchaV2 {
		t.Error("known variant not parsed")
	}
	if ParseVariant("turnstile") != Unknown {
		t.Error("unknown variant should map to Unknown")
	}
}
