package domain

import (
	"strings"
	"time"
)

// Scope selects which messages an analysis request covers
type Scope string

const (
	ScopeChat         Scope = "chat"           // whole current chat
	ScopeUser         Scope = "user"           // one user within the current chat
	ScopeUserAllChats Scope = "user_all_chats" // one user across every known chat
)

// IsUserScope reports whether the scope targets a single user
func (s Scope) IsUserScope() bool {
	return s == ScopeUser || s == ScopeUserAllChats
}

// Stage is a step of the analysis request state machine
type Stage string

const (
	StageReceived     Stage = "received"
	StageAuthorizing  Stage = "authorizing"
	StageRateChecking Stage = "rate_checking"
	StageGathering    Stage = "gathering"
	StageFormatting   Stage = "formatting"
	StageInvoking     Stage = "invoking"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Target identifies the user an analysis is about.
// Either UserID or DisplayName is set; UserID wins when both are.
type Target struct {
	UserID      string
	DisplayName string
}

// IsZero reports whether no target was given
func (t Target) IsZero() bool {
	return t.UserID == "" && strings.TrimSpace(t.DisplayName) == ""
}

// AnalysisRequest is an ephemeral request for one report
type AnalysisRequest struct {
	ID          string
	RequesterID string
	Scope       Scope
	ChatID      string    // required for ScopeChat and ScopeUser
	Target      Target    // required for user scopes
	Limit       int       // keep only the last N gathered messages (0 = all)
	Since       time.Time // keep only messages at or after this instant (zero = all)
}

// Delivery names the channel a result may be sent to
type Delivery string

// DeliveryPrivate is the only delivery mode: the requester's private chat
const DeliveryPrivate Delivery = "private"

// AnalysisResult is the terminal outcome of an analysis request
type AnalysisResult struct {
	RequestID    string
	Recipient    string   // requesting user; results are never addressed to a chat
	Delivery     Delivery // always DeliveryPrivate
	Stage        Stage    // StageCompleted or StageFailed
	FailedAt     Stage    // stage that failed, empty on success
	Report       string
	TargetUserID string // resolved target of user scopes, once Gathering succeeded
	Kind         ErrorKind
	Err          error
	MessageCount int
}

// OK reports whether the request completed
func (r *AnalysisResult) OK() bool {
	return r.Stage == StageCompleted
}

// Prompt is the rendered input to the analysis engine
type Prompt struct {
	System string
	User   string
}

// Len returns the rendered size in characters
func (p Prompt) Len() int {
	return len([]rune(p.System)) + len([]rune(p.User))
}
