package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-service/internal/config"
)

func newTestProvider(serverURL string) *HTTPProvider {
	return NewHTTPProvider(config.ProviderConfig{
		BaseURL: serverURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
}

func TestSendCode(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	require.NoError(t, provider.SendCode(context.Background(), "nurse@hospital.org"))

	assert.Equal(t, "/api/otp/send", gotPath)
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, map[string]string{"email": "nurse@hospital.org"}, gotBody)
}

func TestSendCodeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	err := provider.SendCode(context.Background(), "nurse@hospital.org")
	assert.ErrorIs(t, err, ErrProviderRejected)
}

func TestSendCodeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	provider := newTestProvider(server.URL)
	err := provider.SendCode(context.Background(), "nurse@hospital.org")
	assert.ErrorIs(t, err, ErrProviderUnreachable)
}

func TestVerifyCodeOutcomes(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/otp/verify", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	ctx := context.Background()

	status = http.StatusOK
	assert.NoError(t, provider.VerifyCode(ctx, "nurse@hospital.org", "123456"))

	status = http.StatusUnauthorized
	assert.ErrorIs(t, provider.VerifyCode(ctx, "nurse@hospital.org", "000000"), ErrCodeRejected)

	status = http.StatusBadGateway
	assert.ErrorIs(t, provider.VerifyCode(ctx, "nurse@hospital.org", "123456"), ErrProviderRejected)
}

func TestVerifyCodeHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := newTestProvider(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := provider.VerifyCode(ctx, "nurse@hospital.org", "123456")
	assert.ErrorIs(t, err, ErrProviderUnreachable)
}
