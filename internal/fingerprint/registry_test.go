package fingerprint

import (
	"math/rand"
	"strings"
	"testing"
)

func newTestRegistry(seed int64) *Registry {
	return NewRegistry(nil, rand.New(rand.NewSource(seed)))
}

func TestSamplePersonaConsistency(t *testing.T) {
	reg := newTestRegistry(1)

	for i := 0; i < 500; i++ {
		p := reg.SamplePersona()
		if !p.Consistent() {
			t.Fatalf("sampled persona %d is inconsistent: %+v", i, p)
		}
		if len(p.Languages) == 0 {
			t.Fatal("persona has empty language list")
		}
		if p.HardwareConcurrency < 2 || p.HardwareConcurrency > 32 {
			t.Fatalf("hardware concurrency %d out of range", p.HardwareConcurrency)
		}
		if p.ViewportWidth < 1200 || p.ViewportWidth > 1920 {
			t.Fatalf("viewport width %d out of range", p.ViewportWidth)
		}
		if p.UserAgent == "" || p.Platform == "" {
			t.Fatal("persona missing identity fields")
		}
	}
}

func TestSamplePersonaFamilySelection(t *testing.T) {
	reg := NewRegistry([]string{"chrome-macos"}, rand.New(rand.NewSource(2)))
	for i := 0; i < 50; i++ {
		p := reg.SamplePersona()
		if p.Name != "chrome-macos" {
			t.Fatalf("persona from family %q, want chrome-macos", p.Name)
		}
		if p.Platform != "MacIntel" {
			t.Fatalf("platform %q, want MacIntel", p.Platform)
		}
	}
}

func TestUnknownFamilyFallsBackToAll(t *testing.T) {
	reg := NewRegistry([]string{"safari-ios"}, rand.New(rand.NewSource(3)))
	p := reg.SamplePersona()
	if p.UserAgent == "" {
		t.Fatal("fallback registry produced empty persona")
	}
}

func TestConsistentPredicate(t *testing.T) {
	base := Default()

	tests := []struct {
		name string
		mut  func(*Persona)
		want bool
	}{
		{"default is consistent", func(p *Persona) {}, true},
		{"empty languages", func(p *Persona) { p.Languages = nil }, false},
		{"platform mismatch", func(p *Persona) { p.Platform = "MacIntel" }, false},
		{"low concurrency", func(p *Persona) { p.HardwareConcurrency = 1 }, false},
		{"high concurrency", func(p *Persona) { p.HardwareConcurrency = 64 }, false},
		{
			"mobile gpu with oversized textures",
			func(p *Persona) {
				p.WebGL.Renderer = "Adreno (TM) 650"
				p.WebGL.MaxTextureSize = 16384
			},
			false,
		},
		{
			"mobile gpu within limit",
			func(p *Persona) {
				p.WebGL.Renderer = "Adreno (TM) 650"
				p.WebGL.MaxTextureSize = 8192
			},
			true,
		},
		{
			"client hint disagreement",
			func(p *Persona) {
				headers := map[string]string{"Sec-Ch-Ua-Platform": `"macOS"`}
				p.Headers = headers
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mut(&p)
			if got := p.Consistent(); got != tt.want {
				t.Errorf("Consistent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultPersonaDeterministic(t *testing.T) {
	a, b := Default(), Default()
	if a.UserAgent != b.UserAgent || a.WebGL.Renderer != b.WebGL.Renderer {
		t.Error("canned default persona is not deterministic")
	}
	if !a.Consistent() {
		t.Error("canned default persona must satisfy the consistency predicate")
	}
}

func TestSampleFonts(t *testing.T) {
	reg := newTestRegistry(4)

	fonts := reg.SampleFonts(20)
	if len(fonts) != 20 {
		t.Fatalf("got %d fonts, want 20", len(fonts))
	}
	seen := make(map[string]bool)
	for _, f := range fonts {
		if seen[f] {
			t.Fatalf("duplicate font %q in sample", f)
		}
		seen[f] = true
	}

	// Requesting more than the pool holds returns the whole pool.
	all := reg.SampleFonts(1000)
	if len(all) != len(commonFonts) {
		t.Errorf("oversized request returned %d fonts, want %d", len(all), len(commonFonts))
	}
}

func TestSampleMedia(t *testing.T) {
	reg := newTestRegistry(5)

	for i := 0; i < 100; i++ {
		devices := reg.SampleMedia()
		kinds := make(map[string]int)
		for _, d := range devices {
			kinds[d.Kind]++
			if d.DeviceID == "" || d.GroupID == "" || d.Label == "" {
				t.Fatalf("media device missing fields: %+v", d)
			}
		}
		if kinds["audioinput"] == 0 || kinds["audiooutput"] == 0 {
			t.Fatalf("media sample missing default audio devices: %v", kinds)
		}
	}
}

func TestSampleWebGL(t *testing.T) {
	reg := newTestRegistry(6)

	for i := 0; i < 100; i++ {
		gl := reg.SampleWebGL()
		if gl.Vendor == "" || gl.Renderer == "" {
			t.Fatal("webgl profile missing identity")
		}
		if len(gl.Extensions) < 15 {
			t.Fatalf("webgl profile has %d extensions, want >= 15", len(gl.Extensions))
		}
		if gl.Parameters["MAX_TEXTURE_SIZE"] == "" {
			t.Fatal("webgl profile missing MAX_TEXTURE_SIZE parameter")
		}
	}
}

func TestSampleCanvasJitter(t *testing.T) {
	reg := newTestRegistry(7)

	for i := 0; i < 100; i++ {
		c := reg.SampleCanvasJitter()
		if c.TextOffsetVariance < 0.001 || c.TextOffsetVariance > 0.01 {
			t.Fatalf("text offset variance %f out of range", c.TextOffsetVariance)
		}
		if c.PixelNoiseLevel <= 0 || c.PixelNoiseLevel > 0.001 {
			t.Fatalf("pixel noise level %f out of range", c.PixelNoiseLevel)
		}
	}
}

func TestSampleExtensions(t *testing.T) {
	reg := newTestRegistry(8)

	exts := reg.SampleExtensions(5)
	if len(exts) != 5 {
		t.Fatalf("got %d extensions, want 5", len(exts))
	}

	// The core Chrome extensions are always present.
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = e.Name
		if e.ID == "" || e.Version == "" {
			t.Fatalf("extension missing manifest fields: %+v", e)
		}
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "Chrome Web Store Payments") || !strings.Contains(joined, "Google Docs Offline") {
		t.Errorf("core extensions missing from sample: %v", names)
	}
}

func TestSeededSamplingIsReproducible(t *testing.T) {
	a := newTestRegistry(99).SamplePersona()
	b := newTestRegistry(99).SamplePersona()

	if a.Name != b.Name || a.ViewportWidth != b.ViewportWidth || a.Timezone != b.Timezone {
		t.Error("same seed produced different personas")
	}
}
