package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/internal/ctxkeys"
	"github.com/BaSui01/fusionflow/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{name: "simple object", data: map[string]string{"message": "hello"}, wantStatus: http.StatusOK},
		{name: "array", data: []int{1, 2, 3}, wantStatus: http.StatusOK},
		{name: "accepted", data: map[string]int{"n": 1}, wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantCode     string
		wantUpstream int
	}{
		{
			name:       "validation",
			err:        types.NewError(types.ErrValidation, "instruction is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrValidation),
		},
		{
			name:       "config",
			err:        types.NewError(types.ErrConfig, "FLUX_API_KEY is not configured").WithProvider("flux"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   string(types.ErrConfig),
		},
		{
			name:         "provider http keeps upstream status out of the response code",
			err:          types.NewError(types.ErrProviderHTTP, "rate limited").WithHTTPStatus(http.StatusTooManyRequests).WithRetryable(true),
			wantStatus:   http.StatusBadGateway,
			wantCode:     string(types.ErrProviderHTTP),
			wantUpstream: http.StatusTooManyRequests,
		},
		{
			name:       "job failed",
			err:        types.NewError(types.ErrJobFailed, "content flagged"),
			wantStatus: http.StatusBadGateway,
			wantCode:   string(types.ErrJobFailed),
		},
		{
			name:       "timed out",
			err:        types.NewError(types.ErrTimedOut, "job did not finish"),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   string(types.ErrTimedOut),
		},
		{
			name:       "cancelled by client",
			err:        types.NewCancelledError(context.Canceled),
			wantStatus: http.StatusRequestTimeout,
			wantCode:   string(types.ErrCancelled),
		},
		{
			name:       "server deadline",
			err:        types.NewCancelledError(context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   string(types.ErrCancelled),
		},
		{
			name:       "untyped error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   string(types.ErrInternalError),
		},
		{
			name:       "explicit status on service error",
			err:        types.NewError(types.ErrInvalidRequest, "too large").WithHTTPStatus(http.StatusRequestEntityTooLarge),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   string(types.ErrInvalidRequest),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/v1/images/generate", nil)
			WriteError(w, r, tt.err, logger)

			assert.Equal(t, tt.wantStatus, w.Code)

			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Equal(t, tt.wantUpstream, resp.Error.UpstreamStatus)
		})
	}
}

func TestWriteError_ProviderAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	err := types.NewError(types.ErrNetwork, "connection reset").WithProvider("openai").WithRetryable(true)

	WriteError(w, nil, err, nil)

	resp := decodeResponse(t, w)
	assert.Equal(t, "openai", resp.Error.Provider)
	assert.True(t, resp.Error.Retryable)
	assert.Empty(t, resp.RequestID)
}

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	type TestStruct struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name      string
		body      string
		wantErr   bool
		checkFunc func(*testing.T, *TestStruct)
	}{
		{
			name: "valid JSON",
			body: `{"name":"test","value":123}`,
			checkFunc: func(t *testing.T, ts *TestStruct) {
				assert.Equal(t, "test", ts.Name)
				assert.Equal(t, 123, ts.Value)
			},
		},
		{name: "invalid JSON", body: `{"name":"test",}`, wantErr: true},
		{name: "unknown field", body: `{"name":"test","unknown":"field"}`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))

			var result TestStruct
			err := DecodeJSONBody(w, r, &result, logger)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			assert.NoError(t, err)
			if tt.checkFunc != nil {
				tt.checkFunc(t, &result)
			}
		})
	}
}

func TestDecodeJSONBody_MaxBodySize(t *testing.T) {
	type TestStruct struct {
		Name string `json:"name"`
	}

	oversized := `{"name":"` + strings.Repeat("x", 2<<20) + `"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(oversized))
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var result TestStruct
	err := DecodeJSONBody(w, r, &result, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{name: "valid application/json", contentType: "application/json", want: true},
		{name: "valid with charset", contentType: "application/json; charset=utf-8", want: true},
		{name: "valid with uppercase charset", contentType: "application/json; charset=UTF-8", want: true},
		{name: "valid with extra whitespace", contentType: "application/json;  charset=utf-8", want: true},
		{name: "invalid text/plain", contentType: "text/plain", want: false},
		{name: "empty", contentType: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// 再次写入应该被忽略
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.EqualValues(t, 4, rw.BytesWritten)

	rw.Flush()
	assert.True(t, w.Flushed)
	assert.Same(t, w, rw.Unwrap())
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrValidation, http.StatusBadRequest},
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrConfig, http.StatusServiceUnavailable},
		{types.ErrProviderHTTP, http.StatusBadGateway},
		{types.ErrProviderResponse, http.StatusBadGateway},
		{types.ErrNetwork, http.StatusBadGateway},
		{types.ErrJobFailed, http.StatusBadGateway},
		{types.ErrTimedOut, http.StatusGatewayTimeout},
		{types.ErrCancelled, http.StatusRequestTimeout},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
