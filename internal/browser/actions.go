package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/trose/ice-locator-go/internal/humanize"
	"github.com/trose/ice-locator-go/internal/types"
)

// Navigate loads a URL with human pacing: a pre-navigation pause, a
// network-idle wait, then simulated reading. Returns the resulting HTML.
func (s *Simulator) Navigate(ctx context.Context, sessionID, url string) (string, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		// First use of a session id creates it.
		if sess, err = s.CreateSession(ctx, sessionID); err != nil {
			return "", err
		}
	}

	unlock := sess.lockOp()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BrowserTimeout)
	defer cancel()

	if !humanize.SleepWithContext(ctx, s.timing.PreNavigateDelay()) {
		return "", ctx.Err()
	}

	page := sess.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load failed: %w", err)
	}
	if err := page.WaitIdle(s.cfg.BrowserTimeout); err != nil {
		log.Debug().Err(err).Str("url", url).Msg("Network idle wait ended early")
	}

	sess.RecordVisit()
	sess.RecordAction("navigate_to:" + url)

	// Reading simulation: dwell, sometimes scroll.
	if !humanize.SleepWithContext(ctx, s.timing.ReadingDelay()) {
		return "", ctx.Err()
	}
	scroller := humanize.NewScroller(page, s.rng)
	if err := scroller.SimulateReading(ctx); err != nil {
		return "", err
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("url", url).
		Msg("Navigation completed")

	return html, nil
}

// FillForm fills fields with humanized typing: focus, clear, per-character
// delays, occasional typo-and-correct, occasional mid-field pauses.
func (s *Simulator) FillForm(ctx context.Context, sessionID string, fields map[string]string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}

	unlock := sess.lockOp()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BrowserTimeout)
	defer cancel()
	page := sess.page.Context(ctx)

	for selector, value := range fields {
		el, err := page.Element(selector)
		if err != nil {
			return fmt.Errorf("field %s not found: %w", selector, err)
		}
		if err := el.WaitVisible(); err != nil {
			return fmt.Errorf("field %s not visible: %w", selector, err)
		}
		if err := el.Focus(); err != nil {
			return fmt.Errorf("failed to focus %s: %w", selector, err)
		}
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}

		for _, key := range s.typist.Plan(value) {
			if !humanize.SleepWithContext(ctx, key.Delay) {
				return ctx.Err()
			}
			switch {
			case key.Backspace:
				if err := page.Keyboard.Type(input.Backspace); err != nil {
					return fmt.Errorf("keystroke failed in %s: %w", selector, err)
				}
			case key.Rune != 0:
				if err := page.InsertText(string(key.Rune)); err != nil {
					return fmt.Errorf("keystroke failed in %s: %w", selector, err)
				}
			}
		}

		sess.RecordAction("fill_form:" + selector)
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("fields", len(fields)).
		Msg("Form filled")
	return nil
}

// Click clicks an element the way a person would: wait for visibility,
// scroll it into view, hesitate, click slightly off-center, dwell.
func (s *Simulator) Click(ctx context.Context, sessionID, selector string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}

	unlock := sess.lockOp()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BrowserTimeout)
	defer cancel()
	page := sess.page.Context(ctx)

	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element %s not visible: %w", selector, err)
	}

	scroller := humanize.NewScroller(page, s.rng)
	if err := scroller.ScrollToElement(ctx, el); err != nil {
		log.Debug().Err(err).Str("selector", selector).Msg("Scroll into view failed, clicking anyway")
	}

	if !humanize.SleepWithContext(ctx, s.timing.PreClickDelay()) {
		return ctx.Err()
	}

	// Click with a random offset inside the element, never dead center.
	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return humanize.ErrElementNotVisible
	}
	center := shape.OnePointInside()
	if center == nil {
		return humanize.ErrElementNotVisible
	}
	dx, dy := s.timing.IntBetween(-5, 5), s.timing.IntBetween(-5, 5)
	for dx == 0 && dy == 0 {
		dx, dy = s.timing.IntBetween(-5, 5), s.timing.IntBetween(-5, 5)
	}
	point := proto.Point{
		X: center.X + float64(dx),
		Y: center.Y + float64(dy),
	}
	if err := page.Mouse.MoveTo(point); err != nil {
		return fmt.Errorf("mouse move failed: %w", err)
	}
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed on %s: %w", selector, err)
	}

	if !humanize.SleepWithContext(ctx, s.timing.PostClickDelay()) {
		return ctx.Err()
	}

	sess.RecordAction("click:" + selector)
	log.Debug().
		Str("session_id", sessionID).
		Str("selector", selector).
		Msg("Element clicked")
	return nil
}

// Evaluate runs a script with complexity-scaled pre- and post-delays so
// bursts of evaluation look like deliberate activity.
func (s *Simulator) Evaluate(ctx context.Context, sessionID, script string, complexity humanize.Complexity) (gson.JSON, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return gson.New(nil), err
	}

	unlock := sess.lockOp()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BrowserTimeout)
	defer cancel()
	page := sess.page.Context(ctx)

	pre, post := s.timing.EvalDelays(complexity)
	if !humanize.SleepWithContext(ctx, pre) {
		return gson.New(nil), ctx.Err()
	}

	result, err := page.Eval(script)
	if err != nil {
		return gson.New(nil), fmt.Errorf("evaluation failed: %w", err)
	}

	if !humanize.SleepWithContext(ctx, post) {
		return gson.New(nil), ctx.Err()
	}

	sess.RecordAction("js_execute:" + string(complexity))
	return result.Value, nil
}

// HandleChallenge drives the CAPTCHA pipeline for a session's current page
// with attempt-scaled human timing.
func (s *Simulator) HandleChallenge(ctx context.Context, sessionID string, variant string, maxAttempts int) types.ChallengeResult {
	start := time.Now()
	result := types.ChallengeResult{}

	sess, err := s.Session(sessionID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	unlock := sess.lockOp()
	defer unlock()

	if maxAttempts < 1 {
		maxAttempts = 3
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result.Attempts = attempt + 1

		if !humanize.SleepWithContext(ctx, s.timing.AttemptDelay(attempt)) {
			result.Error = ctx.Err().Error()
			break
		}

		html, err := sess.page.Context(ctx).HTML()
		if err != nil {
			result.Error = err.Error()
			break
		}

		pageURL := ""
		if info, err := sess.page.Info(); err == nil {
			pageURL = info.URL
		}

		ch := s.pipeline.Detect(html, pageURL)
		if ch == nil {
			// Nothing on the page; the explicitly requested variant may have
			// already cleared.
			result.Success = true
			break
		}
		if variant != "" && string(ch.Variant) != variant {
			log.Debug().
				Str("requested", variant).
				Str("detected", string(ch.Variant)).
				Msg("Detected variant differs from requested")
		}
		ch.SessionID = sessionID

		err = s.pipeline.Solve(ctx, ch, s.recheckFunc(sess))
		s.pipeline.History().Record(ch)
		if err == nil {
			result.Success = true
			break
		}
		result.Error = err.Error()

		if attempt < maxAttempts-1 {
			if !humanize.SleepWithContext(ctx, s.timing.BetweenAttemptsDelay(attempt)) {
				result.Error = ctx.Err().Error()
				break
			}
		}
	}

	result.SolveTimeMs = time.Since(start).Milliseconds()
	return result
}

// recheckFunc builds the bypass recheck: reload the page content and see if
// the challenge is still detectable.
func (s *Simulator) recheckFunc(sess *Session) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		html, err := sess.page.Context(ctx).HTML()
		if err != nil {
			return false
		}
		info, err := sess.page.Info()
		if err != nil {
			return false
		}
		return s.pipeline.Detect(html, info.URL) == nil
	}
}
