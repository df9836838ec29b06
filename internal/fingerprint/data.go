package fingerprint

// family is one configured persona pool: a recent desktop browser on a
// common desktop OS, with the header set that browser actually sends.
type family struct {
	Name      string
	UserAgent string
	Platform  string
	Vendor    string
	Languages []string
	Headers   map[string]string
}

// families are the persona pools personas are drawn from. Names here are
// what the PERSONA_FAMILIES config selects on.
var families = []family{
	{
		Name:      "chrome-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Platform:  "Win32",
		Vendor:    "Google Inc.",
		Languages: []string{"en-US", "en"},
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "en-US,en;q=0.9",
			"Sec-Ch-Ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"Windows"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
	{
		Name:      "chrome-macos",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Platform:  "MacIntel",
		Vendor:    "Google Inc.",
		Languages: []string{"en-US", "en"},
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "en-US,en;q=0.9",
			"Sec-Ch-Ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"macOS"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
	{
		Name:      "firefox-windows",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
		Platform:  "Win32",
		Vendor:    "",
		Languages: []string{"en-US", "en"},
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "en-US,en;q=0.5",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
	{
		Name:      "chrome-linux",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Platform:  "Linux x86_64",
		Vendor:    "Google Inc.",
		Languages: []string{"en-US", "en"},
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Encoding":           "gzip, deflate, br",
			"Accept-Language":           "en-US,en;q=0.9",
			"Sec-Ch-Ua":                 `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"Linux"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
}

// commonFonts are fonts plausibly installed on desktop systems. Samples are
// drawn from this list to vary the enumerable font set per persona.
var commonFonts = []string{
	"Arial", "Helvetica", "Times New Roman", "Times", "Courier New", "Courier",
	"Verdana", "Georgia", "Palatino", "Garamond", "Comic Sans MS",
	"Trebuchet MS", "Arial Black", "Impact", "Lucida Console",
	"Lucida Sans Unicode", "Tahoma", "Segoe UI", "Geneva", "Calibri",
	"Candara", "Optima", "Futura", "Gill Sans", "Franklin Gothic",
	"Myriad Pro", "Lucida Grande", "Century Gothic", "Meiryo", "Yu Gothic",
	"Hiragino Kaku Gothic Pro", "Hiragino Mincho Pro", "MS PGothic",
	"MS Gothic", "Malgun Gothic", "Microsoft YaHei", "SimSun", "SimHei",
	"PMingLiU", "MingLiU",
}

// commonAudioCodecs and commonVideoCodecs seed the canPlayType override.
var commonAudioCodecs = []string{
	"audio/mp3", "audio/mp4", "audio/aac", "audio/ogg", "audio/wav",
	"audio/webm", "audio/flac", "audio/x-m4a",
}

var commonVideoCodecs = []string{
	"video/mp4", "video/webm", "video/ogg", "video/quicktime",
	"video/x-msvideo", "video/3gpp", "video/h264", "video/x-m4v",
}

// webglConfig is one realistic GPU identity.
type webglConfig struct {
	Vendor          string
	Renderer        string
	MaxTextureSize  int
	MaxViewportDims int
}

// commonWebGLConfigs are desktop GPU identities seen in the wild.
var commonWebGLConfigs = []webglConfig{
	{"Intel Inc.", "Intel Iris OpenGL Engine", 16384, 16384},
	{"Intel Inc.", "Intel(R) UHD Graphics 630", 16384, 16384},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11)", 32768, 32768},
	{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0, D3D11)", 16384, 16384},
	{"Apple Inc.", "Apple M1", 16384, 16384},
}

// commonWebGLExtensions is the pool getSupportedExtensions() draws from.
var commonWebGLExtensions = []string{
	"ANGLE_instanced_arrays", "EXT_blend_minmax", "EXT_color_buffer_half_float",
	"EXT_disjoint_timer_query", "EXT_float_blend", "EXT_frag_depth",
	"EXT_shader_texture_lod", "EXT_texture_compression_bptc",
	"EXT_texture_compression_rgtc", "EXT_texture_filter_anisotropic",
	"EXT_sRGB", "KHR_parallel_shader_compile", "OES_element_index_uint",
	"OES_fbo_render_mipmap", "OES_standard_derivatives", "OES_texture_float",
	"OES_texture_float_linear", "OES_texture_half_float",
	"OES_texture_half_float_linear", "OES_vertex_array_object",
	"WEBGL_color_buffer_float", "WEBGL_compressed_texture_s3tc",
	"WEBGL_compressed_texture_s3tc_srgb", "WEBGL_depth_texture",
	"WEBGL_draw_buffers", "WEBGL_lose_context",
}

// commonExtensions are extension manifests a real Chrome install may carry.
var commonExtensions = []Extension{
	{ID: "nmmhkkegccagdldgiimedpiccmgmieda", Name: "Chrome Web Store Payments", Version: "1.0.0.7", Permissions: []string{"webRequest", "webRequestBlocking", "storage"}},
	{ID: "ghbmnnjooekpmoecnnnilnnbdlolhkhi", Name: "Google Docs Offline", Version: "1.7", Permissions: []string{"unlimitedStorage", "storage"}},
	{ID: "aapbdbdomjkkjkaonfhkkikfgjllcleb", Name: "Google Translate", Version: "2.0.7", Permissions: []string{"activeTab", "contextMenus", "storage"}},
	{ID: "coobgpohoikkiipiblmjeljniedjpjpf", Name: "Grammarly for Chrome", Version: "14.932.1", Permissions: []string{"activeTab", "contextMenus", "storage", "tabs", "webNavigation", "webRequest", "webRequestBlocking"}},
	{ID: "cjpalhdlnbpafiamejdnhcphjbkeiagm", Name: "uBlock Origin", Version: "1.58.0", Permissions: []string{"activeTab", "storage", "tabs", "unlimitedStorage", "webNavigation", "webRequest", "webRequestBlocking"}},
	{ID: "gighmmpiobklfepjocnamgkkbiglidom", Name: "AdBlock", Version: "4.46.0", Permissions: []string{"activeTab", "storage", "tabs", "unlimitedStorage", "webNavigation", "webRequest", "webRequestBlocking"}},
	{ID: "pjkljhegncpnkpknbcohdijeoejaedia", Name: "Gmail", Version: "8.1", Permissions: []string{"identity", "identity.email", "storage"}},
	{ID: "apdfllckaahabafndbhieahigkjlhalf", Name: "Google Drive", Version: "14.1", Permissions: []string{"identity", "storage"}},
}

// mediaDeviceLabels are label templates per device kind.
var mediaDeviceLabels = map[string][]string{
	"audioinput":  {"Default - Microphone (Realtek High Definition Audio)", "Microphone (USB Audio Device)", "Default - MacBook Pro Microphone"},
	"audiooutput": {"Default - Speakers (Realtek High Definition Audio)", "Speakers (USB Audio Device)", "Default - MacBook Pro Speakers"},
	"videoinput":  {"Integrated Webcam", "HD Pro Webcam C920", "FaceTime HD Camera"},
}

// timezones plausible for US-locale personas.
var timezones = []string{
	"America/New_York", "America/Chicago", "America/Denver",
	"America/Los_Angeles", "America/Phoenix",
}

// defaultPersona is the canned fallback returned when the resampling budget
// is exhausted. It is deterministic and always consistent.
var defaultPersona = Persona{
	Name:      "chrome-windows",
	UserAgent: families[0].UserAgent,
	Platform:  "Win32",
	Vendor:    "Google Inc.",
	Languages: []string{"en-US", "en"},
	Headers:   families[0].Headers,

	ViewportWidth:  1920,
	ViewportHeight: 1080,
	ScreenWidth:    1920,
	ScreenHeight:   1080,
	ScaleFactor:    1,

	Timezone: "America/New_York",
	Locale:   "en-US",

	Fonts:       []string{"Arial", "Calibri", "Courier New", "Georgia", "Segoe UI", "Tahoma", "Times New Roman", "Verdana"},
	AudioCodecs: []string{"audio/mp3", "audio/mp4", "audio/ogg", "audio/wav"},
	VideoCodecs: []string{"video/mp4", "video/webm", "video/ogg"},
	MediaDevices: []MediaDevice{
		{DeviceID: "default", Kind: "audioinput", Label: "Default - Microphone (Realtek High Definition Audio)", GroupID: "default-group"},
		{DeviceID: "default", Kind: "audiooutput", Label: "Default - Speakers (Realtek High Definition Audio)", GroupID: "default-group"},
	},

	WebGL: WebGLProfile{
		Vendor:                 "Intel Inc.",
		Renderer:               "Intel(R) UHD Graphics 630",
		Version:                "WebGL 1.0",
		ShadingLanguageVersion: "WebGL GLSL ES 1.0",
		Extensions:             []string{"ANGLE_instanced_arrays", "OES_texture_float", "OES_standard_derivatives", "WEBGL_lose_context"},
		Parameters:             map[string]string{"MAX_TEXTURE_SIZE": "16384", "MAX_VIEWPORT_DIMS": "16384"},
		MaxTextureSize:         16384,
		MaxViewportDims:        16384,
	},
	Canvas: CanvasJitter{
		TextOffsetVariance:    0.005,
		TextRenderingVariance: 0.1,
		PixelNoiseLevel:       0.005,
		TimingVariance:        0.3,
	},

	Extensions: []Extension{
		{ID: "nmmhkkegccagdldgiimedpiccmgmieda", Name: "Chrome Web Store Payments", Version: "1.0.0.7", Permissions: []string{"webRequest", "webRequestBlocking", "storage"}, Enabled: true},
		{ID: "ghbmnnjooekpmoecnnnilnnbdlolhkhi", Name: "Google Docs Offline", Version: "1.7", Permissions: []string{"unlimitedStorage", "storage"}, Enabled: true},
	},

	HardwareConcurrency: 8,
	DeviceMemory:        8,
}
