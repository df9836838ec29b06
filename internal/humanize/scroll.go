package humanize

import (
	"context"
	"math"
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Reading-scroll behavior constants.
const (
	// readingScrollProbability is the chance a page view includes scrolling.
	readingScrollProbability = 0.3
	scrollMargin             = 100 // pixels of margin when scrolling into view
)

// Scroller provides humanized scroll interactions for a browser page.
type Scroller struct {
	page *rod.Page
	rng  *rand.Rand
}

// NewScroller creates a new humanized scroller for the given page.
func NewScroller(page *rod.Page, rng *rand.Rand) *Scroller {
	return &Scroller{page: page, rng: rng}
}

// SimulateReading performs the scrolling a reader would do while skimming a
// freshly loaded page: with some probability, 1-3 mouse-wheel scrolls with
// pauses between them.
func (s *Scroller) SimulateReading(ctx context.Context) error {
	if !Chance(s.rng, readingScrollProbability) {
		return nil
	}

	scrolls := 1 + s.rng.Intn(3)
	log.Debug().Int("scrolls", scrolls).Msg("Simulating reading scrolls")

	for i := 0; i < scrolls; i++ {
		if !sleepWithContext(ctx, RandomDuration(500, 1500)) {
			return ctx.Err()
		}
		delta := 200 + s.rng.Float64()*400
		if err := s.wheel(delta); err != nil {
			// A failed wheel event is cosmetic; keep reading.
			log.Debug().Err(err).Msg("Reading scroll failed")
		}
	}
	return nil
}

// wheel dispatches a mouse-wheel event at the viewport center.
func (s *Scroller) wheel(deltaY float64) error {
	metrics, err := proto.PageGetLayoutMetrics{}.Call(s.page)
	if err != nil {
		return err
	}
	x := metrics.VisualViewport.ClientWidth / 2
	y := metrics.VisualViewport.ClientHeight / 2
	return proto.InputDispatchMouseEvent{
		Type:   proto.InputDispatchMouseEventTypeMouseWheel,
		X:      x,
		Y:      y,
		DeltaX: 0,
		DeltaY: deltaY,
	}.Call(s.page)
}

// ScrollToElement smoothly scrolls to bring an element into view.
// Uses incremental scrolling with easing for natural appearance.
func (s *Scroller) ScrollToElement(ctx context.Context, element *rod.Element) error {
	shape, err := element.Shape()
	if err != nil {
		return err
	}
	if shape == nil || len(shape.Quads) == 0 {
		return ErrElementNotVisible
	}

	metrics, err := proto.PageGetLayoutMetrics{}.Call(s.page)
	if err != nil {
		return err
	}

	quad := shape.Quads[0]
	elementCenterY := (quad[1] + quad[3] + quad[5] + quad[7]) / 4

	currentScrollY := metrics.VisualViewport.PageY
	viewportHeight := metrics.VisualViewport.ClientHeight

	// Already in view with margin: nothing to do.
	if elementCenterY >= currentScrollY+scrollMargin &&
		elementCenterY <= currentScrollY+viewportHeight-scrollMargin {
		return nil
	}

	targetScrollY := elementCenterY - viewportHeight/2
	maxScrollY := metrics.ContentSize.Height - viewportHeight
	if targetScrollY < 0 {
		targetScrollY = 0
	}
	if targetScrollY > maxScrollY {
		targetScrollY = maxScrollY
	}

	return s.smoothScrollTo(ctx, currentScrollY, targetScrollY)
}

// smoothScrollTo animates a scroll from one Y position to another with
// deceleration easing, stepping at a human wheel cadence.
func (s *Scroller) smoothScrollTo(ctx context.Context, fromY, toY float64) error {
	distance := math.Abs(toY - fromY)
	if distance < 1 {
		return nil
	}

	steps := 8 + int(distance/100)
	if steps > 20 {
		steps = 20
	}

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t := float64(i) / float64(steps)
		eased := 1 - math.Pow(1-t, 3)
		currentY := fromY + (toY-fromY)*eased

		if _, err := s.page.Eval(`y => window.scrollTo({top: y, behavior: 'instant'})`, currentY); err != nil {
			log.Debug().Err(err).Msg("Scroll step failed")
		}

		if !sleepWithContext(ctx, RandomDuration(20, 60)) {
			return ctx.Err()
		}
	}

	return nil
}
