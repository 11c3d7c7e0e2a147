// Package review scores spoken answers against a reference answer using an LLM.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/llm"
)

const maxAttempts = 3

const analyzeSystemPrompt = "You are an expert educational tutor and examiner. Analyze a student answer against the provided standard answer using the transcription text (do not ask the user to transcribe). " +
	"Tasks: (1) Score accuracy and completeness; (2) List ALL missing key points explicitly in `missingKeyPoints`; (3) Provide constructive feedback; (4) Provide an improved answer that naturally incorporates every missing key point. " +
	"Scoring MUST be integer percentage from 0 to 100 (e.g., 0-100, not decimals, not 0-1). " +
	"If nothing is missing, return an empty array for `missingKeyPoints` and keep the improved answer concise. " +
	"Return ONLY valid JSON with keys: transcription, accuracyScore, completenessScore, missingKeyPoints, constructiveFeedback, improvedAnswerSuggestion. " +
	"Use Simplified Chinese for feedback fields. Transcription should match user language."

// Completer is the part of llm.Client the review service needs
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

type Input struct {
	Topic          string `json:"topic"`
	StandardAnswer string `json:"standardAnswer"`
}

// Result is the scored checkpoint
type Result struct {
	Transcription            string   `json:"transcription"`
	AccuracyScore            int      `json:"accuracyScore"`
	CompletenessScore        int      `json:"completenessScore"`
	MissingKeyPoints         []string `json:"missingKeyPoints"`
	ConstructiveFeedback     string   `json:"constructiveFeedback"`
	ImprovedAnswerSuggestion string   `json:"improvedAnswerSuggestion"`
}

// rawResult accepts fractional scores before normalisation
type rawResult struct {
	Transcription            string   `json:"transcription"`
	AccuracyScore            float64  `json:"accuracyScore"`
	CompletenessScore        float64  `json:"completenessScore"`
	MissingKeyPoints         []string `json:"missingKeyPoints"`
	ConstructiveFeedback     string   `json:"constructiveFeedback"`
	ImprovedAnswerSuggestion string   `json:"improvedAnswerSuggestion"`
}

type Service struct {
	llm Completer
}

func NewService(c Completer) *Service {
	return &Service{llm: c}
}

// Analyze scores transcription against in, trying up to three times
func (s *Service) Analyze(ctx context.Context, in Input, transcription string) (*Result, error) {
	if blank(in.Topic) || blank(in.StandardAnswer) || blank(transcription) {
		return nil, apperr.Params("topic, standard answer and transcription are required")
	}

	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: analyzeSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Topic/Question: %q. Standard/Ideal Answer: %q. Transcription: %q. Respond with the required JSON structure.",
				in.Topic, in.StandardAnswer, transcription)},
		},
		Temperature: 0.3,
		TopP:        0.9,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := s.analyzeOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, llm.ErrMissingAPIKey) || ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Answer analysis attempt failed")
	}

	return nil, upstreamError("analysis failed", lastErr)
}

func (s *Service) analyzeOnce(ctx context.Context, req llm.ChatRequest) (*Result, error) {
	text, err := s.llm.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &raw); err != nil {
		return nil, fmt.Errorf("model reply is not valid JSON: %w", err)
	}

	res := &Result{
		Transcription:            raw.Transcription,
		AccuracyScore:            NormalizeScore(raw.AccuracyScore),
		CompletenessScore:        NormalizeScore(raw.CompletenessScore),
		MissingKeyPoints:         raw.MissingKeyPoints,
		ConstructiveFeedback:     raw.ConstructiveFeedback,
		ImprovedAnswerSuggestion: raw.ImprovedAnswerSuggestion,
	}
	if res.MissingKeyPoints == nil {
		res.MissingKeyPoints = []string{}
	}
	return res, nil
}

// upstreamError logs an LLM failure and returns a fixed client-facing message.
// The cause stays reachable through errors.Unwrap.
func upstreamError(message string, err error) error {
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return apperr.Wrap(apperr.OperationError, "LLM API key is not configured", err)
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	log.Error().Err(err).Msg(message)
	return apperr.Wrap(apperr.OperationError, message, err)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
