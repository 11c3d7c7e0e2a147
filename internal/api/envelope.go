package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
)

// Response is the envelope around every JSON reply
type Response struct {
	Code    apperr.Code `json:"code"`
	Data    any         `json:"data"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Code: apperr.OK, Data: data, Message: apperr.OK.Message()})
}

// writeError maps business errors onto the envelope and hides everything else
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	be, ok := apperr.As(err)
	if !ok {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(LogHandlerError)
		be = apperr.New(apperr.SystemError, ErrInternal)
	} else if be.Code >= apperr.SystemError {
		ev := log.Error().Err(err).Str("path", r.URL.Path).Int("code", int(be.Code))
		if cause := errors.Unwrap(be); cause != nil {
			ev = ev.AnErr("cause", cause)
		}
		ev.Msg(LogHandlerError)
	}
	writeJSON(w, be.Code.HTTPStatus(), Response{Code: be.Code, Data: nil, Message: be.Message})
}

// decodeJSON reads the request body into v
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Failed to decode JSON request")
		return apperr.Params(ErrInvalidJSON)
	}
	return nil
}
