package captcha

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// maxBodyLen bounds how much of a response body is scanned. Detection
// signals live near the top of hostile pages; scanning megabytes of HTML
// buys nothing.
const maxBodyLen = 512 * 1024

// Detector scores page content against the pattern set and extracts the
// variant-specific payload from the winner.
type Detector struct {
	patterns *PatternManager
}

// NewDetector creates a detector over a pattern manager.
func NewDetector(patterns *PatternManager) *Detector {
	return &Detector{patterns: patterns}
}

// Detect inspects a response body and its URL for challenges. It returns the
// variant with the highest confidence at or above its threshold, or nil when
// the page is clean. Confidence exactly at the threshold is accepted.
func (d *Detector) Detect(html, pageURL string) *Challenge {
	if len(html) > maxBodyLen {
		html = html[:maxBodyLen]
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse page for challenge detection")
		return nil
	}

	pageText := strings.ToLower(doc.Text())
	scripts := collectScriptSources(doc)
	urlLower := strings.ToLower(pageURL)

	var best *Challenge
	var bestScore float64
	for variant, pattern := range d.patterns.Get().Variants {
		score := scoreVariant(doc, pattern, pageText, scripts, urlLower)
		if score < pattern.MinConfidence {
			continue
		}
		// Rank on the raw score so variants above 1.0 stay ordered; only the
		// reported confidence is clamped.
		if best == nil || score > bestScore {
			bestScore = score
			confidence := score
			if confidence > 1.0 {
				confidence = 1.0
			}
			best = &Challenge{
				Variant:    variant,
				Confidence: confidence,
				PageURL:    pageURL,
				DetectedAt: time.Now(),
				Status:     StatusDetected,
			}
		}
	}

	if best == nil {
		return nil
	}

	d.extractPayload(doc, best)

	log.Info().
		Str("variant", string(best.Variant)).
		Float64("confidence", best.Confidence).
		Str("url", pageURL).
		Msg("Challenge detected")

	return best
}

// scoreVariant sums weighted matches across the four feature groups.
func scoreVariant(doc *goquery.Document, pattern VariantPattern, pageText string, scripts []string, urlLower string) float64 {
	var confidence float64

	for selector, weight := range pattern.Selectors {
		if doc.Find(selector).Length() > 0 {
			confidence += weight
		}
	}

	for keyword, weight := range pattern.Keywords {
		if strings.Contains(pageText, strings.ToLower(keyword)) {
			confidence += weight
		}
	}

	for scriptPattern, weight := range pattern.ScriptPatterns {
		needle := strings.ToLower(scriptPattern)
		for _, script := range scripts {
			if strings.Contains(script, needle) {
				confidence += weight
				break
			}
		}
	}

	for urlPattern, weight := range pattern.URLPatterns {
		if strings.Contains(urlLower, strings.ToLower(urlPattern)) {
			confidence += weight
		}
	}

	return confidence
}

// collectScriptSources gathers lowercased script srcs and inline bodies.
func collectScriptSources(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			out = append(out, strings.ToLower(src))
		}
		if body := s.Text(); body != "" {
			out = append(out, strings.ToLower(body))
		}
	})
	return out
}

// recaptchaExecuteRe pulls the site key out of a grecaptcha.execute call.
var recaptchaExecuteRe = regexp.MustCompile(`grecaptcha\.execute\(["']([^"']+)["']`)

// extractPayload pulls variant-specific data out of the DOM.
func (d *Detector) extractPayload(doc *goquery.Document, ch *Challenge) {
	switch ch.Variant {
	case RecaptchaV2:
		if key, ok := doc.Find("div.g-recaptcha").First().Attr("data-sitekey"); ok {
			ch.SiteKey = key
		} else if key, ok := doc.Find("[data-sitekey]").First().Attr("data-sitekey"); ok {
			ch.SiteKey = key
		}

	case RecaptchaV3:
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := recaptchaExecuteRe.FindStringSubmatch(s.Text()); m != nil {
				ch.SiteKey = m[1]
				return false
			}
			return true
		})

	case HCaptcha:
		if key, ok := doc.Find("div.h-captcha").First().Attr("data-sitekey"); ok {
			ch.SiteKey = key
		}

	case FunCaptcha:
		if key, ok := doc.Find("[data-pkey]").First().Attr("data-pkey"); ok {
			ch.SiteKey = key
		}

	case Image:
		doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, _ := s.Attr("src")
			alt, _ := s.Attr("alt")
			if strings.Contains(strings.ToLower(src), "captcha") ||
				strings.Contains(strings.ToLower(alt), "captcha") {
				ch.ImageURL = src
				return false
			}
			return true
		})

	case Text:
		ch.Question = findChallengeQuestion(doc)
	}
}

// findChallengeQuestion locates the text of a text-challenge prompt.
func findChallengeQuestion(doc *goquery.Document) string {
	for _, selector := range []string{
		`label[for="captcha"]`,
		"div.captcha-question",
		"span.challenge-text",
		".math-captcha",
	} {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}

	// Fall back to question-looking text near a captcha input.
	var question string
	doc.Find(`input[name*="captcha"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prev := s.PrevAll()
		for i := 0; i < 3 && i < prev.Length(); i++ {
			text := strings.TrimSpace(prev.Eq(i).Text())
			if text != "" && strings.Contains(text, "?") {
				question = text
				return false
			}
		}
		return true
	})
	return question
}
