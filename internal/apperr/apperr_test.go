package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{OK, http.StatusOK},
		{ParamsError, http.StatusBadRequest},
		{NotLoginError, http.StatusUnauthorized},
		{NoAuthError, http.StatusUnauthorized},
		{ForbiddenError, http.StatusForbidden},
		{NotFoundError, http.StatusNotFound},
		{TooManyError, http.StatusTooManyRequests},
		{SystemError, http.StatusInternalServerError},
		{OperationError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.HTTPStatus(), "code %d", tt.code)
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("list: %w", Params("at most 100 per page"))
	assert.Equal(t, ParamsError, CodeOf(err))
	assert.Equal(t, "at most 100 per page", err.(interface{ Unwrap() error }).Unwrap().Error())

	assert.Equal(t, SystemError, CodeOf(errors.New("boom")))
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, "requested data does not exist", NotFound("").Message)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("upstream 503")
	err := Wrap(OperationError, "analysis failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, OperationError, CodeOf(err))
	assert.Equal(t, "analysis failed", err.Error())
}
