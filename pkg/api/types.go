package api

// ConfigRequest carries partial engine settings; nil fields stay unchanged.
type ConfigRequest struct {
	Rate         *float64 `json:"rate,omitempty"`
	Limit        *int     `json:"limit,omitempty"`
	DurationS    *float64 `json:"duration_s,omitempty"`
	MaxOffered   *uint64  `json:"max_offered,omitempty"`
	PeriodS      *float64 `json:"period_s,omitempty"`
	AutoDuration *bool    `json:"auto_duration,omitempty"`
}

// ActionResponse acknowledges a lifecycle command and reports the engine
// state after it.
type ActionResponse struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
