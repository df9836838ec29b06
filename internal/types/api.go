package types

// RequestPayload is the body of POST /v1/request.
type RequestPayload struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// RequestResult is the successful response of POST /v1/request.
type RequestResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	HTML      string `json:"html"`
}

// ChallengePayload is the body of POST /v1/challenge.
type ChallengePayload struct {
	SessionID   string `json:"session_id"`
	Variant     string `json:"variant,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

// ChallengeResult reports the outcome of explicit challenge handling.
type ChallengeResult struct {
	Success     bool   `json:"success"`
	Attempts    int    `json:"attempts"`
	SolveTimeMs int64  `json:"solve_time_ms"`
	Error       string `json:"error,omitempty"`
}

// SessionSummary is the lightweight view returned by session listing.
type SessionSummary struct {
	SessionID    string  `json:"session_id"`
	ProfileName  string  `json:"profile_name"`
	StartTime    float64 `json:"start_time"`
	LastActivity float64 `json:"last_activity"`
	PagesVisited int     `json:"pages_visited"`
	ActionsCount int     `json:"actions_count"`
	IsActive     bool    `json:"is_active"`
	Storage      string  `json:"storage,omitempty"` // "memory" or "disk"
}

// StatsResult is the observability snapshot returned by GET /v1/stats.
type StatsResult struct {
	Instances      []InstanceStats `json:"instances"`
	Sessions       int             `json:"sessions"`
	RateMultiplier float64         `json:"rate_multiplier"`
	Challenges     ChallengeStats  `json:"challenge_history_summary"`
}

// InstanceStats is a point-in-time view of one browser instance.
type InstanceStats struct {
	InstanceID          string  `json:"instance_id"`
	Available           bool    `json:"available"`
	Healthy             bool    `json:"healthy"`
	HealthScore         float64 `json:"health_score"`
	RequestCount        int64   `json:"request_count"`
	ErrorCount          int64   `json:"error_count"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	Sessions            int     `json:"sessions"`
}

// ChallengeStats summarizes the in-memory challenge history.
type ChallengeStats struct {
	Total          int                     `json:"total_challenges"`
	Solved         int                     `json:"solved_challenges"`
	SuccessRate    float64                 `json:"success_rate"`
	ByVariant      map[string]VariantStats `json:"by_variant,omitempty"`
	AvgSolveTimeMs int64                   `json:"average_solve_time_ms"`
}

// VariantStats holds per-variant challenge counts.
type VariantStats struct {
	Total  int `json:"total"`
	Solved int `json:"solved"`
}

// APIResponse is the uniform envelope for all endpoints.
type APIResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorRecord `json:"error,omitempty"`
}

// Status values for API responses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
