package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/internal/ctxkeys"
	"github.com/BaSui01/bstflow/types"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "bad"), http.StatusBadRequest},
		{"config invalid", types.NewError(types.ErrConfigInvalid, "bad config"), http.StatusBadRequest},
		{"not found", types.NewError(types.ErrNotFound, "missing"), http.StatusNotFound},
		{"rate limited", types.NewError(types.ErrRateLimited, "slow down"), http.StatusTooManyRequests},
		{"timeout", types.NewError(types.ErrTimeout, "late"), http.StatusGatewayTimeout},
		{"unavailable", types.NewError(types.ErrServiceUnavailable, "off"), http.StatusServiceUnavailable},
		{"internal", types.NewError(types.ErrInternalError, "boom").WithCause(errors.New("x")), http.StatusInternalServerError},
		{"unmapped", types.NewError(types.ErrTokenMismatch, "drift"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, tt.expectedStatus == http.StatusTooManyRequests ||
				tt.expectedStatus >= http.StatusServiceUnavailable, resp.Error.Retryable)
		})
	}
}

func TestAsAPIError(t *testing.T) {
	e := types.NewError(types.ErrNotFound, "x")
	assert.Same(t, e, asAPIError(e))

	ce := asAPIError(&types.ConfigError{Field: "levels", Reason: "must be >= 1"})
	assert.Equal(t, types.ErrInvalidRequest, ce.Code)
	assert.Contains(t, ce.Message, "levels")

	ie := asAPIError(errors.New("disk"))
	assert.Equal(t, types.ErrInternalError, ie.Code)
	assert.ErrorContains(t, ie.Cause, "disk")
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		var p payload
		require.NoError(t, DecodeJSONBody(w, r, &p, nil))
		assert.Equal(t, "x", p.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
		var p payload
		assert.Error(t, DecodeJSONBody(w, r, &p, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		var p payload
		assert.Error(t, DecodeJSONBody(w, r, &p, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		big := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		var p payload
		assert.Error(t, DecodeJSONBody(w, r, &p, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "request body too large")
	})
}

func TestValidateContentType(t *testing.T) {
	for ct, ok := range map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"Application/JSON":                true,
		"text/plain":                      false,
		"application/json-patch+json":     false,
		"":                                false,
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.Equal(t, ok, ValidateContentType(w, r, nil), ct)
	}
}

func TestStatusRecorder(t *testing.T) {
	t.Run("first status wins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := NewStatusRecorder(rec)
		rw.WriteHeader(http.StatusTeapot)
		rw.WriteHeader(http.StatusOK)
		n, err := rw.Write([]byte("abc"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, http.StatusTeapot, rw.Status())
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, int64(3), rw.Bytes())
	})

	t.Run("implicit 200 on write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := NewStatusRecorder(rec)
		_, _ = rw.Write([]byte("x"))
		rw.WriteHeader(http.StatusInternalServerError)
		assert.Equal(t, http.StatusOK, rw.Status())
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
