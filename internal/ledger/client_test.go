package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridreg/pkg/platform/sentinel"
)

func TestRegisterProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects", r.URL.Path)
		assert.Equal(t, "Bearer relay-token", r.Header.Get("Authorization"))

		var req registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "NCCR-MH-2025-001", req.ProjectID)
		assert.Equal(t, "bafyregistration", req.CID)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(registerResponse{TxHash: "0xabc"})
	}))
	defer srv.Close()

	tx, err := New(srv.URL, WithToken("relay-token")).RegisterProject(context.Background(), "NCCR-MH-2025-001", "bafyregistration")

	require.NoError(t, err)
	assert.Equal(t, "0xabc", tx)
}

func TestRegisterProject_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"already anchored", http.StatusConflict, sentinel.ErrConflict},
		{"relay down", http.StatusServiceUnavailable, sentinel.ErrUnavailable},
		{"rejected", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := New(srv.URL).RegisterProject(context.Background(), "p", "cid")
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			} else {
				assert.False(t, errors.Is(err, sentinel.ErrUnavailable))
			}
		})
	}
}

func TestRegisterProject_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).RegisterProject(context.Background(), "p", "cid")
	assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
}
