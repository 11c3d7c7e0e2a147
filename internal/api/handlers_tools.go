package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/asr"
	"shaneshark.com/portfolio/internal/review"
	"shaneshark.com/portfolio/internal/sandbox"
)

// AnalyzeHandler scores a spoken answer
func (s *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Review.Analyze(r.Context(), req.input(), req.Transcription)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, res)
}

func (s *Server) InsightHandler(w http.ResponseWriter, r *http.Request) {
	var req review.InsightRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Review.Insight(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, res)
}

// RunCodeHandler proxies to the runner and answers in the runner's own shape
func (s *Server) RunCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req sandbox.ExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failedRun(err))
		return
	}
	if err := sandbox.Validate(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failedRun(err))
		return
	}
	writeJSON(w, http.StatusOK, s.Runner.Run(r.Context(), req))
}

func failedRun(err error) sandbox.RunResponse {
	return sandbox.RunResponse{Code: -1, Data: sandbox.ExecutionResult{Code: -1, Message: err.Error()}}
}

func (s *Server) LanguagesHandler(w http.ResponseWriter, r *http.Request) {
	writeOK(w, sandbox.Languages())
}

// CodeReviewHandler asks the LLM to review sandbox code
func (s *Server) CodeReviewHandler(w http.ResponseWriter, r *http.Request) {
	var req CodeReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := s.Review.CodeReview(r.Context(), req.Code, req.Language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, text)
}

// TranscribeHandler accepts a multipart "audio" part or a raw audio body
func (s *Server) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	audio, contentType, err := readAudio(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	text, err := s.ASR.Transcribe(r.Context(), bytes.NewReader(audio), contentType)
	if err != nil {
		if errors.Is(err, asr.ErrMissingToken) {
			writeError(w, r, apperr.Wrap(apperr.OperationError, "speech recognition is not configured", err))
			return
		}
		writeError(w, r, apperr.Wrap(apperr.OperationError, ErrTranscribeFail, err))
		return
	}

	log.Info().Int("bytes", len(audio)).Int("chars", len(text)).Msg("Audio transcribed")
	writeOK(w, TranscribeResponse{Text: text})
}

func readAudio(r *http.Request) ([]byte, string, error) {
	src := io.Reader(r.Body)
	contentType := r.Header.Get("Content-Type")

	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, "", apperr.Params(ErrAudioMissing)
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				return nil, "", apperr.Params(ErrAudioMissing)
			}
			if part.FormName() == "audio" {
				src = part
				contentType = part.Header.Get("Content-Type")
				break
			}
		}
	}

	data, err := io.ReadAll(io.LimitReader(src, asr.MaxAudioBytes+1))
	if err != nil {
		return nil, "", apperr.Params(ErrAudioMissing)
	}
	if len(data) > asr.MaxAudioBytes {
		return nil, "", apperr.Params(asr.ErrTooLarge.Error())
	}
	if len(data) == 0 {
		return nil, "", apperr.Params(ErrAudioMissing)
	}
	if strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = ""
	}
	return data, contentType, nil
}
