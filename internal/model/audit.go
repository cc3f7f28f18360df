package model

import "time"

// Auth event types recorded by the audit recorder.
const (
	EventOTPRequested   = "otp_requested"
	EventOTPSendFailed  = "otp_send_failed"
	EventOTPVerified    = "otp_verified"
	EventOTPRejected    = "otp_rejected"
	EventOTPExhausted   = "otp_exhausted"
	EventSessionExpired = "otp_session_expired"
	EventTokenRefreshed = "token_refreshed"
	EventLogout         = "logout"
)

// AuthEvent is the audit record indexed into Elasticsearch and
// published to Kafka. EmailKey is the blind index, never a raw email.
type AuthEvent struct {
	EventBucket int       `json:"event_bucket"`
	EventDate   string    `json:"event_date"`
	EventTime   time.Time `json:"event_time"`
	EventType   string    `json:"event_type"`
	EmailKey    string    `json:"email_key"`
	UserID      string    `json:"user_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	Details     string    `json:"details,omitempty"`
}
