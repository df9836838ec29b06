// Package fingerprint supplies coherent browser personas and renders the
// stealth payload that makes a page agree with them. A persona is an
// immutable bundle: every observable a detection script can read is drawn
// from the same identity, so cross-checks (user agent vs platform vs client
// hints vs WebGL) stay consistent.
package fingerprint

import "strings"

// Persona is one simulated browser identity. Personas are immutable after
// construction and shared freely across sessions.
type Persona struct {
	Name      string `json:"name"` // family label, e.g. "chrome-windows"
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"` // navigator.platform value
	Vendor    string `json:"vendor"`

	Languages []string          `json:"languages"`
	Headers   map[string]string `json:"headers"`

	ViewportWidth  int     `json:"viewport_width"`
	ViewportHeight int     `json:"viewport_height"`
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	ScaleFactor    float64 `json:"scale_factor"`

	Timezone string `json:"timezone"`
	Locale   string `json:"locale"`

	Fonts        []string      `json:"fonts"`
	MediaDevices []MediaDevice `json:"media_devices"`
	AudioCodecs  []string      `json:"audio_codecs"`
	VideoCodecs  []string      `json:"video_codecs"`

	WebGL  WebGLProfile `json:"webgl"`
	Canvas CanvasJitter `json:"canvas"`

	Extensions []Extension `json:"extensions"`

	HardwareConcurrency int `json:"hardware_concurrency"`
	DeviceMemory        int `json:"device_memory"`
}

// MediaDevice describes one entry returned by enumerateDevices().
type MediaDevice struct {
	DeviceID string `json:"deviceId"`
	Kind     string `json:"kind"` // audioinput | audiooutput | videoinput
	Label    string `json:"label"`
	GroupID  string `json:"groupId"`
}

// WebGLProfile carries the GPU identity exposed through the WebGL API.
type WebGLProfile struct {
	Vendor                 string            `json:"vendor"`
	Renderer               string            `json:"renderer"`
	Version                string            `json:"version"`
	ShadingLanguageVersion string            `json:"shading_language_version"`
	Extensions             []string          `json:"extensions"`
	Parameters             map[string]string `json:"parameters"`
	MaxTextureSize         int               `json:"max_texture_size"`
	MaxViewportDims        int               `json:"max_viewport_dims"`
}

// CanvasJitter parameterizes the per-draw randomization applied to canvas
// rendering so repeated fingerprint probes never hash identically.
type CanvasJitter struct {
	TextOffsetVariance    float64 `json:"text_offset_variance"`    // sub-pixel offset scale for fillText/strokeText
	TextRenderingVariance float64 `json:"text_rendering_variance"` // measureText width multiplier spread
	PixelNoiseLevel       float64 `json:"pixel_noise_level"`       // per-pixel RGB noise bound
	TimingVariance        float64 `json:"timing_variance"`
}

// Extension is an installed-extension manifest visible to probing scripts.
type Extension struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Permissions []string `json:"permissions"`
	Enabled     bool     `json:"enabled"`
}

// Consistent reports whether the persona's fields agree with each other.
// A persona failing this predicate is rejected at sample time.
func (p *Persona) Consistent() bool {
	if len(p.Languages) == 0 {
		return false
	}
	if p.HardwareConcurrency < 2 || p.HardwareConcurrency > 32 {
		return false
	}
	if !platformMatchesUserAgent(p.Platform, p.UserAgent) {
		return false
	}
	if !clientHintMatchesPlatform(p.Headers["Sec-Ch-Ua-Platform"], p.Platform) {
		return false
	}
	if isMobileGPU(p.WebGL.Renderer) && p.WebGL.MaxTextureSize > 8192 {
		return false
	}
	return true
}

// platformMatchesUserAgent checks the navigator.platform label against the
// OS token inside the user-agent string.
func platformMatchesUserAgent(platform, userAgent string) bool {
	switch platform {
	case "Win32":
		return strings.Contains(userAgent, "Windows")
	case "MacIntel":
		return strings.Contains(userAgent, "Macintosh") || strings.Contains(userAgent, "Mac OS X")
	case "Linux x86_64":
		return strings.Contains(userAgent, "Linux") || strings.Contains(userAgent, "X11")
	default:
		return false
	}
}

// clientHintMatchesPlatform checks the Sec-Ch-Ua-Platform header against the
// platform label. Firefox personas send no client hints, which is fine.
func clientHintMatchesPlatform(hint, platform string) bool {
	if hint == "" {
		return true
	}
	hint = strings.Trim(hint, `"`)
	switch platform {
	case "Win32":
		return hint == "Windows"
	case "MacIntel":
		return hint == "macOS"
	case "Linux x86_64":
		return hint == "Linux"
	default:
		return false
	}
}

// isMobileGPU recognizes mobile GPU renderer strings. Mobile GPUs cap their
// max texture size at 8192; a larger value is an inconsistency.
func isMobileGPU(renderer string) bool {
	r := strings.ToLower(renderer)
	for _, token := range []string{"adreno", "mali", "powervr", "apple a", "tegra"} {
		if strings.Contains(r, token) {
			return true
		}
	}
	return false
}
