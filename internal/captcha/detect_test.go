package captcha

import (
	"os"
	"testing"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	patterns, err := NewPatternManager("", false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(patterns.Close)
	return NewDetector(patterns)
}

func TestDetectCleanPage(t *testing.T) {
	d := newTestDetector(t)

	ch := d.Detect("<html><body><h1>OK</h1></body></html>", "https://ex.com/ok")
	if ch != nil {
		t.Errorf("clean page produced a challenge: %+v", ch)
	}
}

func TestDetectRecaptchaV2(t *testing.T) {
	d := newTestDetector(t)

	html := `<html><body>
		<div class="g-recaptcha" data-sitekey="K"></div>
		<script src="https://www.google.com/recaptcha/api.js"></script>
	</body></html>`

	ch := d.Detect(html, "https://ex.com/form")
	if ch == nil {
		t.Fatal("reCAPTCHA v2 page not detected")
	}
	if ch.Variant != RecaptchaV2 {
		t.Errorf("variant = %s, want %s", ch.Variant, RecaptchaV2)
	}
	if ch.Confidence < 0.5 {
		t.Errorf("confidence = %f, want >= 0.5", ch.Confidence)
	}
	if ch.SiteKey != "K" {
		t.Errorf("site key = %q, want K", ch.SiteKey)
	}
	if ch.Status != StatusDetected {
		t.Errorf("status = %s, want detected", ch.Status)
	}
}

func TestDetectHCaptcha(t *testing.T) {
	d := newTestDetector(t)

	html := `<html><body>
		<div class="h-captcha" data-sitekey="HK"></div>
		<script src="https://js.hcaptcha.com/1/api.js"></script>
	</body></html>`

	ch := d.Detect(html, "https://ex.com/verify")
	if ch == nil {
		t.Fatal("hCaptcha page not detected")
	}
	if ch.Variant != HCaptcha {
		t.Errorf("variant = %s, want %s", ch.Variant, HCaptcha)
	}
	if ch.SiteKey != "HK" {
		t.Errorf("site key = %q, want HK", ch.SiteKey)
	}
}

func TestDetectRecaptchaV3SiteKey(t *testing.T) {
	d := newTestDetector(t)

	html := `<html><body>
		<script src="https://www.gstatic.com/recaptcha/releases/v3/main.js"></script>
		<script>grecaptcha.execute('V3KEY', {action: 'submit'});</script>
	</body></html>`

	ch := d.Detect(html, "https://ex.com/page")
	if ch == nil {
		t.Fatal("reCAPTCHA v3 page not detected")
	}
	if ch.Variant != RecaptchaV3 {
		t.Errorf("variant = %s, want %s", ch.Variant, RecaptchaV3)
	}
	if ch.SiteKey != "V3KEY" {
		t.Errorf("site key = %q, want V3KEY", ch.SiteKey)
	}
}

func TestDetectCloudflareInterstitial(t *testing.T) {
	d := newTestDetector(t)

	html := `<html><head><title>Just a moment...</title></head><body>
		<h1>Checking your browser before accessing the site.</h1>
		<p>DDoS protection by Cloudflare</p>
	</body></html>`

	ch := d.Detect(html, "https://ex.com/")
	if ch == nil {
		t.Fatal("Cloudflare interstitial not detected")
	}
	if ch.Variant != Cloudflare {
		t.Errorf("variant = %s, want %s", ch.Variant, Cloudflare)
	}
}

func TestDetectImageCaptcha(t *testing.T) {
	d := newTestDetector(t)

	html := `<html><body>
		<p>Enter the code shown below</p>
		<img class="captcha-image" src="/captcha/image.png" alt="captcha">
		<input name="captcha_answer">
	</body></html>`

	ch := d.Detect(html, "https://ex.com/check")
	if ch == nil {
		t.Fatal("image captcha not detected")
	}
	if ch.Variant != Image {
		t.Errorf("variant = %s, want %s", ch.Variant, Image)
	}
	if ch.ImageURL != "/captcha/image.png" {
		t.Errorf("image url = %q", ch.ImageURL)
	}
}

func TestDetectTextCaptchaQuestion(t *testing.T) {
	d := newTestDetector(t)

	html := `<html><body>
		<div class="math-captcha">What is 3 + 4?</div>
		<p>Please solve the math problem above.</p>
		<input name="captcha">
	</body></html>`

	ch := d.Detect(html, "https://ex.com/q")
	if ch == nil {
		t.Fatal("text captcha not detected")
	}
	if ch.Variant != Text {
		t.Errorf("variant = %s, want %s", ch.Variant, Text)
	}
	if ch.Question == "" {
		t.Error("question not extracted")
	}
}

// TestDetectConfidenceAtThresholdAccepted drives a page whose single signal
// weight equals the variant threshold exactly.
func TestDetectConfidenceAtThresholdAccepted(t *testing.T) {
	d := newTestDetector(t)

	// cloudflare: only the "ddos protection" keyword at weight 0.8 against a
	// 0.7 threshold would overshoot; use a custom pattern check instead via
	// recaptcha_v2's "[data-sitekey]" (0.6) + keyword "recaptcha" (0.3) = 0.9.
	// For an exact-threshold case: text_captcha "what is" (0.4) alone misses
	// selectors entirely and 0.4 > 0.3; the true boundary is recaptcha_v2
	// with only "#recaptcha" (0.5) at threshold 0.5.
	html := `<html><body><div id="recaptcha"></div></body></html>`

	ch := d.Detect(html, "https://ex.com/x")
	if ch == nil {
		t.Fatal("confidence exactly at threshold must be accepted")
	}
	if ch.Variant != RecaptchaV2 {
		t.Errorf("variant = %s, want %s", ch.Variant, RecaptchaV2)
	}
	if ch.Confidence != 0.5 {
		t.Errorf("confidence = %f, want exactly 0.5", ch.Confidence)
	}
}

func TestDetectPicksHighestConfidence(t *testing.T) {
	d := newTestDetector(t)

	// Both hCaptcha (strong) and a weak recaptcha keyword are present.
	html := `<html><body>
		<div class="h-captcha" data-sitekey="HK"></div>
		<script src="https://js.hcaptcha.com/1/api.js"></script>
		<div id="recaptcha"></div>
	</body></html>`

	ch := d.Detect(html, "https://ex.com/both")
	if ch == nil {
		t.Fatal("no challenge detected")
	}
	if ch.Variant != HCaptcha {
		t.Errorf("variant = %s, want the higher-confidence %s", ch.Variant, HCaptcha)
	}
}

func TestPatternManagerExternalOverride(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/patterns.yaml"
	override := `variants:
  cloudflare:
    keywords:
      "custom interstitial marker": 0.9
    min_confidence: 0.5
`
	if err := writeFile(path, override); err != nil {
		t.Fatal(err)
	}

	m, err := NewPatternManager(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	p := m.Get()
	if len(p.Variants) != 1 {
		t.Fatalf("override not applied, %d variants", len(p.Variants))
	}
	if _, ok := p.Variants[Cloudflare]; !ok {
		t.Error("override missing cloudflare variant")
	}
}

func TestPatternManagerBadExternalFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/patterns.yaml"
	if err := writeFile(path, ":::not yaml"); err != nil {
		t.Fatal(err)
	}

	m, err := NewPatternManager(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if len(m.Get().Variants) == 0 {
		t.Error("embedded defaults not retained after bad external file")
	}
}
