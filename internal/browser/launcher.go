// Package browser drives a single headless-browser process and its
// sessions: persona-consistent contexts, humanized navigation and input,
// and challenge handling on loaded pages.
package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/config"
)

// createLauncher builds a Rod launcher with anti-detection flags. The flags
// keep Chrome from announcing automation: no AutomationControlled blink
// feature, no enable-automation switch, SwiftShader-backed WebGL so GPU
// probes return real-looking values.
func createLauncher(cfg *config.Config) *launcher.Launcher {
	l := launcher.New()

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		// Running headed under a virtual display. Rod defaults to headless,
		// so it must be disabled explicitly.
		l = l.Headless(false)
	}

	// Container flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	// WebRTC must not leak the real address regardless of proxying.
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	// Core anti-detection flags
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")
	l = l.Set("disable-features", "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns")
	l = l.Set("enable-features", "NetworkService,NetworkServiceInProcess")

	// SwiftShader WebGL: empty WebGL values are a detection signal.
	l = l.Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2")

	// Realistic browser behavior
	l = l.Set("accept-lang", "en-US,en;q=0.9").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen").
		Set("window-size", "1920,1080")

	// Stability in constrained environments
	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-sync").
		Set("mute-audio").
		Set("no-zygote").
		Set("disable-gpu-sandbox")

	return l
}

// launchBrowser starts a browser process and connects to it over CDP.
func launchBrowser(cfg *config.Config) (*rod.Browser, error) {
	l := createLauncher(cfg)

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	log.Debug().Str("url", url).Msg("Browser launched")
	return browser, nil
}
