package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"insights-service/internal/auth"
	"insights-service/internal/model"
	"insights-service/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// AuthHandler handles the OTP login flow and token lifecycle.
type AuthHandler struct {
	authService *auth.Service
	logger      *zap.Logger
}

func NewAuthHandler(authService *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes mounts the auth endpoints. Everything after the OTP
// handshake sits behind the gate.
func (h *AuthHandler) RegisterRoutes(router chi.Router, gate func(http.Handler) http.Handler) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(gate)
			r.Post("/refresh-token", h.RefreshToken)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
			r.Post("/validate", h.Validate)
		})
	})
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type sendOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

// SendOTP starts a login: the provider delivers a code and a fresh
// verification session replaces any prior one for the email.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.authService.RequestCode(ctx, req.Email)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to send verification code")
		return
	}

	writeJSON(w, http.StatusOK, sendOTPResponse{
		Success:   true,
		Message:   "Verification code sent",
		ExpiresIn: result.ExpiresIn,
	})
	h.logger.Info("OTP requested via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SendOTP"),
	)
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type verifyOTPResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Token     string      `json:"token"`
	User      *model.User `json:"user"`
	ExpiresIn int         `json:"expiresIn"`
}

// VerifyOTP completes a login: code check, identity resolution, token
// minting.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.authService.VerifyCode(ctx, req.Email, req.OTP)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	writeJSON(w, http.StatusOK, verifyOTPResponse{
		Success: true,
		Message: "Login successful",
		Token:   result.Token,
		User: &model.User{
			UserID: result.UserID,
			Email:  result.Email,
		},
		ExpiresIn: result.ExpiresIn,
	})
	h.logger.Info("Login via HTTP",
		util.String("user_id", result.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyOTP"),
	)
}

type refreshResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// RefreshToken reissues a token for the authenticated identity.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ClaimsFromContext(ctx)

	tokenString, expiresIn, err := h.authService.Refresh(ctx, claims)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Success:   true,
		Token:     tokenString,
		ExpiresIn: expiresIn,
	})
}

// Logout drops the server-side session record. The presented token
// stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ClaimsFromContext(ctx)

	if err := h.authService.Logout(ctx, claims); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, successResponse(nil, "Logged out successfully"))
	h.logger.Info("Logout via HTTP",
		util.String("user_id", claims.UserID),
		util.String("method", "Logout"),
	)
}

// Me returns the authenticated profile and, when one is live, the
// session record.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ClaimsFromContext(ctx)

	user, session := h.authService.Profile(ctx, claims)

	data := map[string]interface{}{"user": user}
	if session != nil {
		data["session"] = session
	}

	writeJSON(w, http.StatusOK, successResponse(data, "Profile retrieved"))
}

// Validate echoes the verified claims. Reaching this handler means the
// gate already accepted the token.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	writeJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"userId":    claims.UserID,
		"email":     claims.Email,
		"expiresAt": claims.ExpiresAt.Time,
	}, "Token is valid"))
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	writeJSON(w, statusCode, errorResponse(err, message))
}

func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, util.ErrInvalidEmail), errors.Is(err, util.ErrInvalidOTPFormat):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, auth.ErrMaxAttempts),
		errors.Is(err, auth.ErrInvalidCode):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrProviderUnavailable),
		errors.Is(err, auth.ErrProviderRejected),
		errors.Is(err, auth.ErrProviderUnreachable),
		errors.Is(err, auth.ErrProviderInternal):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
