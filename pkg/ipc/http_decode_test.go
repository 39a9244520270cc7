package ipc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxBytes int64
		wantCode bcerrors.ErrorCode
		status   int
	}{
		{name: "valid", body: `{"platform":"x"}`, maxBytes: maxRequestBodyBytes},
		{name: "empty", body: "", maxBytes: maxRequestBodyBytes, wantCode: bcerrors.ErrCodeInvalidRequest, status: http.StatusBadRequest},
		{name: "truncated", body: `{"platform":`, maxBytes: maxRequestBodyBytes, wantCode: bcerrors.ErrCodeInvalidRequest, status: http.StatusBadRequest},
		{name: "wrong type", body: `{"platform":7}`, maxBytes: maxRequestBodyBytes, wantCode: bcerrors.ErrCodeInvalidRequest, status: http.StatusBadRequest},
		{name: "too large", body: `{"platform":"` + strings.Repeat("a", 128) + `"}`, maxBytes: 32, wantCode: bcerrors.ErrCodeBodyTooLarge, status: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/start-session", strings.NewReader(tt.body))
			got, err := decodeBody[startSessionRequest](httptest.NewRecorder(), req, tt.maxBytes)
			if tt.wantCode == "" {
				require.Nil(t, err)
				assert.Equal(t, "x", got.Platform)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.status, err.HTTPStatus())
		})
	}
}

func TestDecodeBodyNilRequest(t *testing.T) {
	_, err := decodeBody[endSessionRequest](httptest.NewRecorder(), nil, 0)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "body required")
}

func TestDecodeBodyTooLargeReportsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat(" ", 64)+`{}`))
	_, err := decodeBody[endSessionRequest](httptest.NewRecorder(), req, 16)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "max_bytes: 16")
}
