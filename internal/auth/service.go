package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"insights-service/internal/audit"
	"insights-service/internal/cache"
	"insights-service/internal/identity"
	"insights-service/internal/model"
	"insights-service/internal/token"
	"insights-service/internal/util"
)

// Authentication state errors, mapped to 401 with distinct messages so
// clients can tell "re-enter the code" from "restart the flow".
var (
	ErrSessionExpired      = errors.New("otp session expired")
	ErrMaxAttempts         = errors.New("maximum attempts exceeded")
	ErrInvalidCode         = errors.New("invalid or expired code")
	ErrProviderUnavailable = errors.New("verification service unavailable")
)

// maxAttempts is a protocol constant: the counter is charged before
// the provider call, and the attempt that pushes it past the limit
// terminates the session.
const maxAttempts = 5

const (
	otpSessionPrefix  = "otp:sess:"
	otpAttemptPrefix  = "otp:att:"
	userSessionPrefix = "sess:user:"
)

// SendResult is returned by RequestCode.
type SendResult struct {
	ExpiresIn int
}

// LoginResult is returned by a successful VerifyCode.
type LoginResult struct {
	UserID    string
	Email     string
	Token     string
	ExpiresIn int
}

// Service is the OTP session manager. It owns the per-email session
// records and attempt counters in the cache and mediates between the
// external delivery provider, the identity resolver, and the token
// issuer.
type Service struct {
	store      cache.Store
	provider   OTPProvider
	resolver   *identity.Resolver
	issuer     *token.Issuer
	recorder   *audit.Recorder
	otpTTL     time.Duration
	sessionTTL time.Duration
	logger     *zap.Logger
}

func NewService(
	store cache.Store,
	provider OTPProvider,
	resolver *identity.Resolver,
	issuer *token.Issuer,
	recorder *audit.Recorder,
	otpTTL time.Duration,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      store,
		provider:   provider,
		resolver:   resolver,
		issuer:     issuer,
		recorder:   recorder,
		otpTTL:     otpTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// RequestCode starts a verification cycle: the provider generates and
// delivers the code, then a fresh session replaces any prior one for
// the email. Nothing is written when delivery fails.
func (s *Service) RequestCode(ctx context.Context, email string) (*SendResult, error) {
	normalized, err := util.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	emailKey := s.resolver.EmailKey(normalized)

	if err := s.provider.SendCode(ctx, normalized); err != nil {
		s.recorder.Record(ctx, model.AuthEvent{
			EventType: model.EventOTPSendFailed,
			EmailKey:  emailKey,
			Details:   classifySendFailure(err),
		})
		return nil, err
	}

	session := model.OTPSession{
		Email:     normalized,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal otp session: %w", err)
	}

	if err := s.store.Set(ctx, otpSessionPrefix+emailKey, string(data), s.otpTTL); err != nil {
		return nil, fmt.Errorf("failed to store otp session: %w", err)
	}
	// A new session starts the attempt budget over.
	if err := s.store.Delete(ctx, otpAttemptPrefix+emailKey); err != nil {
		s.logger.Warn("Failed to reset attempt counter", zap.Error(err))
	}

	s.recorder.Record(ctx, model.AuthEvent{
		EventType: model.EventOTPRequested,
		EmailKey:  emailKey,
	})
	s.logger.Info("OTP session created",
		util.String("email_key", emailKey),
		util.Duration("ttl", s.otpTTL),
	)

	return &SendResult{ExpiresIn: int(s.otpTTL.Seconds())}, nil
}

// VerifyCode checks a submitted code against the provider, enforcing
// the attempt budget and session expiry. On success the session is
// consumed, the identity is resolved, a session record is written, and
// a bearer token is minted.
func (s *Service) VerifyCode(ctx context.Context, email, code string) (*LoginResult, error) {
	normalized, err := util.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := util.ValidateOTPFormat(code); err != nil {
		return nil, err
	}

	emailKey := s.resolver.EmailKey(normalized)
	sessionKey := otpSessionPrefix + emailKey
	attemptKey := otpAttemptPrefix + emailKey

	raw, err := s.store.Get(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			s.recorder.Record(ctx, model.AuthEvent{
				EventType: model.EventSessionExpired,
				EmailKey:  emailKey,
			})
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to read otp session: %w", err)
	}

	var session model.OTPSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("corrupt otp session: %w", err)
	}

	// Charge the attempt before calling out, so induced network
	// failures cannot be used to retry for free. The increment is
	// atomic at the storage layer; the value that crosses the limit
	// terminates the session.
	attempts, err := s.store.IncrementWithTTL(ctx, attemptKey, s.otpTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}
	if attempts > maxAttempts {
		_ = s.store.Delete(ctx, sessionKey)
		_ = s.store.Delete(ctx, attemptKey)
		s.recorder.Record(ctx, model.AuthEvent{
			EventType: model.EventOTPExhausted,
			EmailKey:  emailKey,
		})
		s.logger.Warn("OTP attempts exhausted",
			util.String("email_key", emailKey),
			util.Int("attempts", int(attempts)),
		)
		return nil, ErrMaxAttempts
	}

	if err := s.provider.VerifyCode(ctx, normalized, code); err != nil {
		if errors.Is(err, ErrCodeRejected) {
			// Wrong code: the session survives so the remaining
			// attempts can be used.
			s.recorder.Record(ctx, model.AuthEvent{
				EventType: model.EventOTPRejected,
				EmailKey:  emailKey,
				Details:   fmt.Sprintf("attempt %d of %d", attempts, maxAttempts),
			})
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	// One-time use: consume the session before minting anything.
	_ = s.store.Delete(ctx, sessionKey)
	_ = s.store.Delete(ctx, attemptKey)

	userID, err := s.resolver.Resolve(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	if err := s.writeSessionRecord(ctx, userID, normalized); err != nil {
		s.logger.Warn("Failed to write session record", zap.Error(err))
	}

	tokenString, err := s.issuer.Issue(userID, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.recorder.Record(ctx, model.AuthEvent{
		EventType: model.EventOTPVerified,
		EmailKey:  emailKey,
		UserID:    userID,
	})
	s.logger.Info("Login verified",
		util.String("user_id", userID),
		util.Duration("session_age", time.Since(session.CreatedAt)),
	)

	return &LoginResult{
		UserID:    userID,
		Email:     normalized,
		Token:     tokenString,
		ExpiresIn: int(s.issuer.Expiry().Seconds()),
	}, nil
}

// Refresh mints a new token for an already-authenticated identity.
func (s *Service) Refresh(ctx context.Context, claims *token.Claims) (string, int, error) {
	tokenString, err := s.issuer.Issue(claims.UserID, claims.Email)
	if err != nil {
		return "", 0, fmt.Errorf("failed to refresh token: %w", err)
	}

	s.recorder.Record(ctx, model.AuthEvent{
		EventType: model.EventTokenRefreshed,
		EmailKey:  s.resolver.EmailKey(claims.Email),
		UserID:    claims.UserID,
	})

	return tokenString, int(s.issuer.Expiry().Seconds()), nil
}

// Logout deletes the user session record. Outstanding bearer tokens
// remain cryptographically valid until expiry; revocation is
// best-effort by design.
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	if err := s.store.Delete(ctx, userSessionPrefix+claims.UserID); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}

	s.recorder.Record(ctx, model.AuthEvent{
		EventType: model.EventLogout,
		EmailKey:  s.resolver.EmailKey(claims.Email),
		UserID:    claims.UserID,
	})
	return nil
}

// Profile returns the public identity plus the session record when one
// is still live.
func (s *Service) Profile(ctx context.Context, claims *token.Claims) (*model.User, *model.SessionRecord) {
	user := &model.User{
		UserID: claims.UserID,
		Email:  claims.Email,
	}

	raw, err := s.store.Get(ctx, userSessionPrefix+claims.UserID)
	if err != nil {
		return user, nil
	}

	var record model.SessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return user, nil
	}
	return user, &record
}

func (s *Service) writeSessionRecord(ctx context.Context, userID, email string) error {
	record := model.SessionRecord{
		UserID:    userID,
		Email:     email,
		LastLogin: time.Now().UTC(),
		Active:    true,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, userSessionPrefix+userID, string(data), s.sessionTTL)
}

func classifySendFailure(err error) string {
	switch {
	case errors.Is(err, ErrProviderRejected):
		return "provider error status"
	case errors.Is(err, ErrProviderUnreachable):
		return "no response from provider"
	default:
		return "local failure before dispatch"
	}
}
