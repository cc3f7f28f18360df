package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"insights-service/internal/config"
)

// Provider failure taxonomy. The three send-side cases map to distinct
// user-facing messages; callers must not leak provider internals.
var (
	// ErrProviderRejected: the provider replied with an error status.
	ErrProviderRejected = errors.New("otp provider rejected the request")
	// ErrCodeRejected: the provider replied 401 to a verification.
	ErrCodeRejected = errors.New("otp provider rejected the code")
	// ErrProviderUnreachable: no response (transport error or timeout).
	ErrProviderUnreachable = errors.New("otp provider unreachable")
	// ErrProviderInternal: local failure before the call was dispatched.
	ErrProviderInternal = errors.New("otp provider request could not be built")
)

// OTPProvider is the external email microservice that generates,
// delivers, and checks one-time codes. This service never sees or
// stores the codes themselves.
type OTPProvider interface {
	SendCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) error
}

// HTTPProvider talks JSON over HTTP with a bounded timeout.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(cfg config.ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (p *HTTPProvider) SendCode(ctx context.Context, email string) error {
	status, err := p.post(ctx, "/api/otp/send", map[string]string{"email": email})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: status %d", ErrProviderRejected, status)
	}
	return nil
}

func (p *HTTPProvider) VerifyCode(ctx context.Context, email, code string) error {
	status, err := p.post(ctx, "/api/otp/verify", map[string]string{"email": email, "otp": code})
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrCodeRejected
	default:
		return fmt.Errorf("%w: status %d", ErrProviderRejected, status)
	}
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload map[string]string) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProviderInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProviderInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures look the same to callers:
		// the provider never answered.
		return 0, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
