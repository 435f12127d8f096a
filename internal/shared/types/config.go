package types

// SourceProfile describes one upstream proxy source. It is the core data
// structure of the configs/sources.json data file; the behavior config
// (poold.ini) never embeds source definitions.
type SourceProfile struct {
	Name    string `json:"name"`    // unique key, e.g. "proxy-list.download"
	Enabled bool   `json:"enabled"` // disabled sources are skipped, not errors

	// Extractor selects the extraction strategy registered under this
	// name: "plaintext", "htmltable", "jsonapi", ...
	Extractor string `json:"extractor"`

	// URL is the page or API endpoint the extractor fetches.
	URL string `json:"url"`

	// Protocol claimed by the source for its endpoints when the listing
	// itself does not carry one ("http", "https", "socks4", "socks5").
	Protocol string `json:"protocol,omitempty"`

	// Throttling and resilience knobs, per source.
	RateLimitPerMinute int `json:"rateLimitPerMinute,omitempty"` // 0 = default
	TimeoutSeconds     int `json:"timeoutSeconds,omitempty"`     // 0 = default
	RetryCount         int `json:"retryCount,omitempty"`         // 0 = default

	// Source-specific fields, interpreted by the selected extractor.
	HostSelector string `json:"hostSelector,omitempty"` // htmltable: cell selector
	JSONVar      string `json:"jsonVar,omitempty"`      // jsonapi: embedded JS variable
	ProxyURL     string `json:"proxyURL,omitempty"`     // optional forward proxy for the fetch
}

// LogConf holds logging behavior.
type LogConf struct {
	Level string `ini:"level"`
}

// StoreConf holds persistence behavior.
type StoreConf struct {
	StateDir string `ini:"stateDir"`
}

// OrchestratorConf holds the task engine behavior.
type OrchestratorConf struct {
	Workers              int `ini:"workers"`
	QueueCapacity        int `ini:"queueCapacity"`
	ShutdownGraceSeconds int `ini:"shutdownGraceSeconds"`
}

// CoordinatorConf holds extraction fan-out behavior.
type CoordinatorConf struct {
	MaxConcurrentSources int `ini:"maxConcurrentSources"`
	DefaultRateLimit     int `ini:"defaultRateLimit"` // requests per minute per source
	DefaultTimeoutSec    int `ini:"defaultTimeoutSeconds"`
	DefaultRetryCount    int `ini:"defaultRetryCount"`
	RetryDelayMillis     int `ini:"retryDelayMillis"`
}

// ValidateConf holds probe behavior. The targets default to public
// services; tests point them at local servers.
type ValidateConf struct {
	MaxConcurrent    int    `ini:"maxConcurrent"`
	TimeoutSeconds   int    `ini:"timeoutSeconds"`
	ConnectTarget    string `ini:"connectTarget"`    // connectivity probe URL
	SpeedTarget      string `ini:"speedTarget"`      // speed probe URL
	SpeedAttempts    int    `ini:"speedAttempts"`    // repeated short probes
	GeoAPI           string `ini:"geoAPI"`           // ip-api style JSON endpoint
	EchoAPI          string `ini:"echoAPI"`          // origin/header echo endpoint
	RemovalThreshold int    `ini:"removalThreshold"` // failure streak before eviction
	StaleAfterHours  int    `ini:"staleAfterHours"`  // revalidation due age
	RevalidateBatch  int    `ini:"revalidateBatch"`
}

// ScoringConf holds the composite score weights and acceptance threshold.
// Weights need not sum to 1; the engine normalizes by the weight sum.
type ScoringConf struct {
	ConnectivityWeight float64 `ini:"connectivityWeight"`
	ResponseTimeWeight float64 `ini:"responseTimeWeight"`
	AnonymityWeight    float64 `ini:"anonymityWeight"`
	StabilityWeight    float64 `ini:"stabilityWeight"`
	GeolocationWeight  float64 `ini:"geolocationWeight"`
	SpeedWeight        float64 `ini:"speedWeight"`
	AcceptThreshold    float64 `ini:"acceptThreshold"`
}

// SchedulerConf holds the cron specs for recurring tasks. Empty spec
// disables the corresponding job.
type SchedulerConf struct {
	ExtractionSpec string `ini:"extractionSpec"`
	ValidationSpec string `ini:"validationSpec"`
	CleanupSpec    string `ini:"cleanupSpec"`
}

// Config aggregates all behavior configuration loaded from poold.ini.
type Config struct {
	LogConf          LogConf          `ini:"log"`
	StoreConf        StoreConf        `ini:"store"`
	OrchestratorConf OrchestratorConf `ini:"orchestrator"`
	CoordinatorConf  CoordinatorConf  `ini:"coordinator"`
	ValidateConf     ValidateConf     `ini:"validate"`
	ScoringConf      ScoringConf      `ini:"scoring"`
	SchedulerConf    SchedulerConf    `ini:"scheduler"`
}

// NewDefaultConfig returns a Config with every knob at its documented
// default, used when poold.ini is absent and as the MapTo base.
func NewDefaultConfig() *Config {
	return &Config{
		LogConf:   LogConf{Level: "info"},
		StoreConf: StoreConf{StateDir: "data"},
		OrchestratorConf: OrchestratorConf{
			Workers:              4,
			QueueCapacity:        1000,
			ShutdownGraceSeconds: 30,
		},
		CoordinatorConf: CoordinatorConf{
			MaxConcurrentSources: 5,
			DefaultRateLimit:     30,
			DefaultTimeoutSec:    20,
			DefaultRetryCount:    3,
			RetryDelayMillis:     1000,
		},
		ValidateConf: ValidateConf{
			MaxConcurrent:    10,
			TimeoutSeconds:   10,
			ConnectTarget:    "https://www.gstatic.com/generate_204",
			SpeedTarget:      "https://www.gstatic.com/generate_204",
			SpeedAttempts:    3,
			GeoAPI:           "http://ip-api.com/json",
			EchoAPI:          "http://httpbin.org/get",
			RemovalThreshold: 7,
			StaleAfterHours:  12,
			RevalidateBatch:  50,
		},
		ScoringConf: ScoringConf{
			ConnectivityWeight: 0.25,
			ResponseTimeWeight: 0.20,
			AnonymityWeight:    0.20,
			StabilityWeight:    0.15,
			GeolocationWeight:  0.10,
			SpeedWeight:        0.10,
			AcceptThreshold:    60,
		},
		SchedulerConf: SchedulerConf{
			ExtractionSpec: "0 */6 * * *",
			ValidationSpec: "*/30 * * * *",
			CleanupSpec:    "15 3 * * *",
		},
	}
}
