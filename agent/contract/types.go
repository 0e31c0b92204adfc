package contract

import "time"

// QueryRequest is one natural-language question from a caller. SessionID
// identifies the conversation for history purposes only; it never contributes
// to the deduplication key.
type QueryRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

// QueryResult is the resolved answer for a query and every caller coalesced
// onto it.
type QueryResult struct {
	Answer     string    `json:"answer"`
	Model      string    `json:"model,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}
