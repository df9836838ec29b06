package fingerprint

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
)

// maxResamples bounds how many inconsistent samples are retried before the
// canned default persona is returned.
const maxResamples = 8

// Registry samples internally consistent personas from the configured
// persona families. The random source is injected so tests can seed it.
type Registry struct {
	mu       sync.Mutex
	rng      *rand.Rand
	families []family
}

// NewRegistry creates a registry over the named families. Unknown names are
// skipped with a warning; an empty selection means all families.
func NewRegistry(familyNames []string, rng *rand.Rand) *Registry {
	selected := make([]family, 0, len(families))
	if len(familyNames) == 0 {
		selected = append(selected, families...)
	} else {
		byName := make(map[string]family, len(families))
		for _, f := range families {
			byName[f.Name] = f
		}
		for _, name := range familyNames {
			f, ok := byName[name]
			if !ok {
				log.Warn().Str("family", name).Msg("Unknown persona family, skipping")
				continue
			}
			selected = append(selected, f)
		}
		if len(selected) == 0 {
			log.Warn().Msg("No valid persona families selected, using all")
			selected = append(selected, families...)
		}
	}

	return &Registry{rng: rng, families: selected}
}

// SamplePersona returns a fresh, internally consistent persona drawn
// uniformly from the configured families. Inconsistent samples are resampled
// up to the budget, then the canned default is returned.
func (r *Registry) SamplePersona() Persona {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < maxResamples; i++ {
		p := r.sample()
		if p.Consistent() {
			return p
		}
		log.Debug().
			Str("family", p.Name).
			Int("attempt", i+1).
			Msg("Sampled inconsistent persona, resampling")
	}

	log.Warn().Msg("Persona resampling budget exhausted, using canned default")
	return defaultPersona
}

// sample draws one persona without consistency checking.
// Callers must hold r.mu.
func (r *Registry) sample() Persona {
	f := r.families[r.rng.Intn(len(r.families))]

	viewportW := 1200 + r.rng.Intn(721) // 1200-1920
	viewportH := 800 + r.rng.Intn(281)  // 800-1080

	p := Persona{
		Name:      f.Name,
		UserAgent: f.UserAgent,
		Platform:  f.Platform,
		Vendor:    f.Vendor,
		Languages: append([]string(nil), f.Languages...),
		Headers:   f.Headers,

		ViewportWidth:  viewportW,
		ViewportHeight: viewportH,
		ScreenWidth:    viewportW,
		ScreenHeight:   viewportH,
		ScaleFactor:    []float64{1, 1.25, 1.5, 2}[r.rng.Intn(4)],

		Timezone: timezones[r.rng.Intn(len(timezones))],
		Locale:   "en-US",

		Fonts:        r.sampleFonts(16 + r.rng.Intn(10)),
		MediaDevices: r.sampleMedia(),
		AudioCodecs:  sampleStrings(r.rng, commonAudioCodecs, 3+r.rng.Intn(4)),
		VideoCodecs:  sampleStrings(r.rng, commonVideoCodecs, 3+r.rng.Intn(4)),

		WebGL:  r.sampleWebGL(),
		Canvas: r.sampleCanvasJitter(),

		Extensions: r.sampleExtensions(3 + r.rng.Intn(4)),

		HardwareConcurrency: []int{2, 4, 4, 8, 8, 8, 12, 16}[r.rng.Intn(8)],
		DeviceMemory:        []int{4, 8, 8, 16}[r.rng.Intn(4)],
	}

	return p
}

// SampleFonts returns a random plausible font list of the given size.
func (r *Registry) SampleFonts(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleFonts(n)
}

func (r *Registry) sampleFonts(n int) []string {
	return sampleStrings(r.rng, commonFonts, n)
}

// SampleMedia returns a randomized media-device set.
func (r *Registry) SampleMedia() []MediaDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleMedia()
}

func (r *Registry) sampleMedia() []MediaDevice {
	devices := make([]MediaDevice, 0, 4)
	// Every machine has default audio in and out; a camera is optional.
	kinds := []string{"audioinput", "audiooutput"}
	if r.rng.Float64() < 0.7 {
		kinds = append(kinds, "videoinput")
	}
	for _, kind := range kinds {
		labels := mediaDeviceLabels[kind]
		devices = append(devices, MediaDevice{
			DeviceID: randomHex(r.rng, 32),
			Kind:     kind,
			Label:    labels[r.rng.Intn(len(labels))],
			GroupID:  randomHex(r.rng, 32),
		})
	}
	return devices
}

// SampleWebGL returns a randomized WebGL identity.
func (r *Registry) SampleWebGL() WebGLProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleWebGL()
}

func (r *Registry) sampleWebGL() WebGLProfile {
	cfg := commonWebGLConfigs[r.rng.Intn(len(commonWebGLConfigs))]
	extCount := 15 + r.rng.Intn(len(commonWebGLExtensions)-14)
	exts := sampleStrings(r.rng, commonWebGLExtensions, extCount)

	return WebGLProfile{
		Vendor:                 cfg.Vendor,
		Renderer:               cfg.Renderer,
		Version:                "WebGL 1.0",
		ShadingLanguageVersion: "WebGL GLSL ES 1.0",
		Extensions:             exts,
		Parameters: map[string]string{
			"VENDOR":            cfg.Vendor,
			"RENDERER":          cfg.Renderer,
			"MAX_TEXTURE_SIZE":  fmt.Sprintf("%d", cfg.MaxTextureSize),
			"MAX_VIEWPORT_DIMS": fmt.Sprintf("%d", cfg.MaxViewportDims),
			"RED_BITS":          "8",
			"GREEN_BITS":        "8",
			"BLUE_BITS":         "8",
			"ALPHA_BITS":        "8",
			"DEPTH_BITS":        "24",
			"STENCIL_BITS":      "0",
		},
		MaxTextureSize:  cfg.MaxTextureSize,
		MaxViewportDims: cfg.MaxViewportDims,
	}
}

// SampleCanvasJitter returns randomized canvas jitter parameters.
func (r *Registry) SampleCanvasJitter() CanvasJitter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleCanvasJitter()
}

func (r *Registry) sampleCanvasJitter() CanvasJitter {
	return CanvasJitter{
		TextOffsetVariance:    0.001 + r.rng.Float64()*0.009, // 0.1-1% of font size
		TextRenderingVariance: 0.05 + r.rng.Float64()*0.10,   // 5-15% width spread
		PixelNoiseLevel:       0.0001 + r.rng.Float64()*0.0009,
		TimingVariance:        0.1 + r.rng.Float64()*0.4,
	}
}

// SampleExtensions returns n extension manifests. The payments and docs
// extensions ship with every Chrome install, so they are always present.
func (r *Registry) SampleExtensions(n int) []Extension {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleExtensions(n)
}

func (r *Registry) sampleExtensions(n int) []Extension {
	selected := []Extension{commonExtensions[0], commonExtensions[1]}
	rest := commonExtensions[2:]
	perm := r.rng.Perm(len(rest))
	for _, idx := range perm {
		if len(selected) >= n {
			break
		}
		selected = append(selected, rest[idx])
	}
	out := make([]Extension, len(selected))
	for i, ext := range selected {
		ext.Enabled = r.rng.Float64() > 0.1 // most extensions stay enabled
		out[i] = ext
	}
	return out
}

// Default returns the canned fallback persona.
func Default() Persona {
	return defaultPersona
}

// sampleStrings returns n distinct entries of pool in random order.
func sampleStrings(rng *rand.Rand, pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	perm := rng.Perm(len(pool))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

const hexDigits = "0123456789abcdef"

func randomHex(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = hexDigits[rng.Intn(16)]
	}
	return string(b)
}
