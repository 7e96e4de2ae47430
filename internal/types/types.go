package types

import (
	"encoding/json"
	"time"
)

// RegisterRequest represents the body for account registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// User represents the authenticated user's profile
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// APIKeyStatus reports whether the user has stored a provider API key
type APIKeyStatus struct {
	HasAPIKey bool   `json:"has_api_key"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// SaveAPIKeyRequest represents the body for storing a provider API key
type SaveAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// OptimizeRequest represents the input for an optimization run
type OptimizeRequest struct {
	JobDescription string `json:"job_description"`
	Resume         string `json:"resume"`
}

// OptimizationResult is the terminal payload of an optimization run.
// Structured sub-documents (requirements, analysis, plan, logs) are
// backend-owned and passed through opaquely.
type OptimizationResult struct {
	RunID          string `json:"run_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
	OriginalResume string `json:"original_resume,omitempty"`
	ModifiedResume string `json:"modified_resume"`

	ATSScoreBefore   float64 `json:"ats_score_before"`
	ATSScoreAfter    float64 `json:"ats_score_after"`
	ImprovementDelta float64 `json:"improvement_delta"`

	IterationCount int    `json:"iteration_count"`
	FinalStatus    string `json:"final_status"`

	JobRequirements map[string]any    `json:"job_requirements,omitempty"`
	ResumeAnalysis  map[string]any    `json:"resume_analysis,omitempty"`
	ImprovementPlan map[string]any    `json:"improvement_plan,omitempty"`
	DecisionLog     []json.RawMessage `json:"decision_log,omitempty"`
	ScoreHistory    []json.RawMessage `json:"score_history,omitempty"`
}

// Run represents one recorded optimization run
type Run struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	JobDescription string          `json:"job_description,omitempty"`
	Status         string          `json:"status"`
	ResultJSON     json.RawMessage `json:"result_json,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
}

// DeleteSummary is returned when clearing run history
type DeleteSummary struct {
	Deleted int `json:"deleted"`
}

// CompileRequest represents the body for LaTeX compilation
type CompileRequest struct {
	LatexCode string `json:"latex_code"`
}

// ExtractResponse is returned by the PDF text extraction endpoint
type ExtractResponse struct {
	Text string `json:"text"`
}

// StreamEvent is one decoded server-sent event. Data holds the parsed
// JSON payload, or {"raw": <text>} when the payload was not valid JSON.
// Events are ephemeral: produced per frame and handed to the sink.
type StreamEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}
