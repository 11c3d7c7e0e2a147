package api

import (
	"shaneshark.com/portfolio/internal/review"
)

// HTTP path constants
const (
	HealthPath  = "/health"
	MetricsPath = "/metrics"
)

// Error message constants
const (
	ErrAdminRequired   = "admin permission required"
	ErrInvalidJSON     = "invalid JSON body"
	ErrInvalidID       = "invalid id"
	ErrInternal        = "internal system error"
	ErrAudioMissing    = "audio is required"
	ErrSessionSaveFail = "failed to save session"
	ErrTranscribeFail  = "speech recognition failed, please retry"
)

// Log message constants
const (
	LogPanicRecovered = "Recovered from handler panic"
	LogRequestServed  = "Request served"
	LogHandlerError   = "Handler failed"
)

type AdminLoginRequest struct {
	Password string `json:"password"`
}

type EmailLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type AnalyzeRequest struct {
	Topic          string `json:"topic"`
	StandardAnswer string `json:"standardAnswer"`
	Transcription  string `json:"transcription"`
}

func (r AnalyzeRequest) input() review.Input {
	return review.Input{Topic: r.Topic, StandardAnswer: r.StandardAnswer}
}

type CodeReviewRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type TranscribeResponse struct {
	Text string `json:"text"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
