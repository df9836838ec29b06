package fingerprint

import (
	"encoding/json"
	"fmt"
)

// payloadVersion tags the generated script so stale injections can be
// recognized across template revisions.
const payloadVersion = "3"

// payloadData is the JSON blob interpolated into the stealth template.
// Only persona-derived values cross the Go/JS boundary; all behavior lives
// in the template itself.
type payloadData struct {
	Platform            string            `json:"platform"`
	Vendor              string            `json:"vendor"`
	Languages           []string          `json:"languages"`
	HardwareConcurrency int               `json:"hardwareConcurrency"`
	DeviceMemory        int               `json:"deviceMemory"`
	MediaDevices        []MediaDevice     `json:"mediaDevices"`
	AudioCodecs         []string          `json:"audioCodecs"`
	VideoCodecs         []string          `json:"videoCodecs"`
	WebGLVendor         string            `json:"webglVendor"`
	WebGLRenderer       string            `json:"webglRenderer"`
	WebGLExtensions     []string          `json:"webglExtensions"`
	WebGLParameters     map[string]string `json:"webglParameters"`
	TextOffset          float64           `json:"textOffset"`
	TextVariance        float64           `json:"textVariance"`
	PixelNoise          float64           `json:"pixelNoise"`
	Extensions          []Extension       `json:"extensions"`
}

// RenderStealthPayload emits the initialization script that, injected into a
// browser context before any page script runs, makes every JS-observable
// surface agree with the persona.
func RenderStealthPayload(p Persona) (string, error) {
	data := payloadData{
		Platform:            p.Platform,
		Vendor:              p.Vendor,
		Languages:           p.Languages,
		HardwareConcurrency: p.HardwareConcurrency,
		DeviceMemory:        p.DeviceMemory,
		MediaDevices:        p.MediaDevices,
		AudioCodecs:         p.AudioCodecs,
		VideoCodecs:         p.VideoCodecs,
		WebGLVendor:         p.WebGL.Vendor,
		WebGLRenderer:       p.WebGL.Renderer,
		WebGLExtensions:     p.WebGL.Extensions,
		WebGLParameters:     p.WebGL.Parameters,
		TextOffset:          p.Canvas.TextOffsetVariance,
		TextVariance:        p.Canvas.TextRenderingVariance,
		PixelNoise:          p.Canvas.PixelNoiseLevel,
		Extensions:          p.Extensions,
	}

	blob, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal persona payload: %w", err)
	}

	return fmt.Sprintf(stealthTemplate, payloadVersion, payloadVersion, blob), nil
}

// stealthTemplate is the versioned stealth script. Two interpolation slots:
// the payload version tag and the persona JSON blob.
const stealthTemplate = `
(() => {
    'use strict';

    if (window.__fpApplied === '%s') {
        return;
    }
    window.__fpApplied = '%s';

    const P = %s;

    const def = (obj, prop, getter) => {
        try {
            Object.defineProperty(obj, prop, { get: getter, configurable: true });
        } catch (e) { /* property not configurable on this engine */ }
    };

    try {

    // ========================================
    // 1. navigator identity
    // ========================================
    def(navigator, 'webdriver', () => undefined);
    def(navigator, 'platform', () => P.platform);
    def(navigator, 'vendor', () => P.vendor);
    def(navigator, 'languages', () => P.languages.slice());
    def(navigator, 'language', () => P.languages[0]);
    def(navigator, 'hardwareConcurrency', () => P.hardwareConcurrency);
    def(navigator, 'deviceMemory', () => P.deviceMemory);

    def(navigator, 'connection', () => ({
        effectiveType: '4g',
        rtt: 50,
        downlink: 10,
        saveData: false,
        onchange: null
    }));

    // ========================================
    // 2. plugins and mimeTypes
    // ========================================
    const makePluginArray = (entries) => {
        const arr = entries.slice();
        arr.item = (i) => arr[i] || null;
        arr.namedItem = (name) => arr.find(p => p.name === name) || null;
        arr.refresh = () => {};
        return arr;
    };
    def(navigator, 'plugins', () => makePluginArray([
        { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format', length: 1 },
        { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '', length: 1 },
        { name: 'Native Client', filename: 'internal-nacl-plugin', description: '', length: 2 }
    ]));
    def(navigator, 'mimeTypes', () => makePluginArray([
        { type: 'application/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
        { type: 'text/pdf', suffixes: 'pdf', description: 'Portable Document Format' }
    ]));

    // ========================================
    // 3. media devices
    // ========================================
    if (navigator.mediaDevices && navigator.mediaDevices.enumerateDevices) {
        navigator.mediaDevices.enumerateDevices = () => Promise.resolve(P.mediaDevices.map(d => ({
            deviceId: d.deviceId,
            kind: d.kind,
            label: d.label,
            groupId: d.groupId,
            toJSON() { return this; }
        })));
    }

    // ========================================
    // 4. codec support
    // ========================================
    if (typeof HTMLMediaElement !== 'undefined') {
        const origCanPlay = HTMLMediaElement.prototype.canPlayType;
        HTMLMediaElement.prototype.canPlayType = function(type) {
            const base = String(type).split(';')[0].trim().toLowerCase();
            if (P.audioCodecs.indexOf(base) !== -1 || P.videoCodecs.indexOf(base) !== -1) {
                return 'probably';
            }
            return origCanPlay.call(this, type);
        };
    }

    // ========================================
    // 5. WebGL identity
    // ========================================
    const UNMASKED_VENDOR_WEBGL = 37445;
    const UNMASKED_RENDERER_WEBGL = 37446;
    const paramByEnum = {
        3379: P.webglParameters['MAX_TEXTURE_SIZE'],   // MAX_TEXTURE_SIZE
        3386: P.webglParameters['MAX_VIEWPORT_DIMS'],  // MAX_VIEWPORT_DIMS
        7936: P.webglVendor,                           // VENDOR
        7937: P.webglRenderer                          // RENDERER
    };

    ['WebGLRenderingContext', 'WebGL2RenderingContext'].forEach((ctxName) => {
        const ctx = window[ctxName];
        if (!ctx || !ctx.prototype) return;

        const origGetParameter = ctx.prototype.getParameter;
        if (typeof origGetParameter === 'function') {
            ctx.prototype.getParameter = function(param) {
                if (param === UNMASKED_VENDOR_WEBGL) return P.webglVendor;
                if (param === UNMASKED_RENDERER_WEBGL) return P.webglRenderer;
                if (paramByEnum[param] !== undefined) {
                    const v = paramByEnum[param];
                    const n = Number(v);
                    return isNaN(n) ? v : n;
                }
                return origGetParameter.call(this, param);
            };
        }

        const origGetExtension = ctx.prototype.getExtension;
        if (typeof origGetExtension === 'function') {
            ctx.prototype.getExtension = function(name) {
                if (name === 'WEBGL_debug_renderer_info') return null;
                return origGetExtension.call(this, name);
            };
        }

        if (typeof ctx.prototype.getSupportedExtensions === 'function') {
            ctx.prototype.getSupportedExtensions = function() {
                return P.webglExtensions.slice();
            };
        }

        const origReadPixels = ctx.prototype.readPixels;
        if (typeof origReadPixels === 'function') {
            ctx.prototype.readPixels = function(x, y, w, h, format, type, pixels) {
                const out = origReadPixels.call(this, x, y, w, h, format, type, pixels);
                if (pixels && pixels.length) {
                    // Flip the low bit of every 401st byte: a change of one step.
                    for (let i = 0; i < pixels.length; i += 401) {
                        pixels[i] = pixels[i] ^ 1;
                    }
                }
                return out;
            };
        }
    });

    // ========================================
    // 6. Canvas jitter
    // ========================================
    if (typeof CanvasRenderingContext2D !== 'undefined') {
        const proto = CanvasRenderingContext2D.prototype;
        const jitter = () => (Math.random() * 2 - 1) * P.textOffset;

        ['fillText', 'strokeText'].forEach((fn) => {
            const orig = proto[fn];
            if (typeof orig !== 'function') return;
            proto[fn] = function(text, x, y, maxWidth) {
                const size = parseFloat(this.font) || 10;
                const dx = jitter() * size;
                const dy = jitter() * size;
                if (maxWidth === undefined) {
                    return orig.call(this, text, x + dx, y + dy);
                }
                return orig.call(this, text, x + dx, y + dy, maxWidth);
            };
        });

        const origMeasure = proto.measureText;
        if (typeof origMeasure === 'function') {
            proto.measureText = function(text) {
                const m = origMeasure.call(this, text);
                const factor = 1 + (Math.random() * 2 - 1) * P.textVariance;
                const width = m.width * factor;
                return new Proxy(m, {
                    get: (target, prop) => prop === 'width' ? width : target[prop]
                });
            };
        }

        const origGetImageData = proto.getImageData;
        if (typeof origGetImageData === 'function') {
            proto.getImageData = function(sx, sy, sw, sh, settings) {
                const data = origGetImageData.call(this, sx, sy, sw, sh, settings);
                const noise = Math.max(1, Math.floor(255 * P.pixelNoise));
                const px = data.data;
                for (let i = 0; i < px.length; i += 4) {
                    if (Math.random() < P.pixelNoise * 10) {
                        px[i] = Math.min(255, px[i] + (Math.random() < 0.5 ? -noise : noise));
                    }
                }
                return data;
            };
        }
    }

    if (typeof HTMLCanvasElement !== 'undefined') {
        const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
        HTMLCanvasElement.prototype.toDataURL = function(...args) {
            try {
                const ctx = this.getContext('2d');
                if (ctx && this.width > 1 && this.height > 1) {
                    // One-pixel random-alpha stamp keeps hashes unstable.
                    const prev = ctx.fillStyle;
                    ctx.fillStyle = 'rgba(255,255,255,' + (Math.random() * 0.01).toFixed(4) + ')';
                    ctx.fillRect(this.width - 1, this.height - 1, 1, 1);
                    ctx.fillStyle = prev;
                }
            } catch (e) { /* tainted canvas */ }
            return origToDataURL.apply(this, args);
        };
    }

    // ========================================
    // 7. chrome.* surface
    // ========================================
    if (!window.chrome) window.chrome = {};
    const noop = () => {};
    if (!window.chrome.runtime) {
        window.chrome.runtime = {
            connect: () => ({ onMessage: { addListener: noop }, onDisconnect: { addListener: noop }, postMessage: noop, disconnect: noop }),
            sendMessage: noop,
            onMessage: { addListener: noop },
            id: undefined
        };
    }
    if (!window.chrome.management) {
        window.chrome.management = {
            getAll: (cb) => { const v = P.extensions.filter(e => e.enabled); if (cb) cb(v); return Promise.resolve(v); },
            get: (id, cb) => { const v = P.extensions.find(e => e.id === id) || null; if (cb) cb(v); return Promise.resolve(v); }
        };
    }
    if (!window.chrome.storage) {
        window.chrome.storage = {
            local: { get: (k, cb) => { if (cb) cb({}); }, set: (v, cb) => { if (cb) cb(); } },
            sync: { get: (k, cb) => { if (cb) cb({}); }, set: (v, cb) => { if (cb) cb(); } }
        };
    }
    if (!window.chrome.contextMenus) {
        window.chrome.contextMenus = { create: noop, remove: noop, removeAll: noop };
    }
    if (!window.chrome.tabs) {
        window.chrome.tabs = { query: (q, cb) => { if (cb) cb([]); return Promise.resolve([]); } };
    }
    if (!window.chrome.webRequest) {
        window.chrome.webRequest = { onBeforeRequest: { addListener: noop, removeListener: noop } };
    }

    } catch (e) {
        console.debug('[fp] some overrides failed:', e.message);
    }
})();
`
