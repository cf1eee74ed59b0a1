// Package audit records security-relevant events: token lifecycle,
// authorization decisions, and administrative mutations. Sinks are pluggable;
// the core emits events and never blocks on sink failures.
package audit

import (
	"context"
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	// Token lifecycle events.
	EventTokenIssue        EventType = "token.issue"
	EventTokenValidate     EventType = "token.validate"
	EventTokenValidateFail EventType = "token.validate_fail"
	EventTokenRevoke       EventType = "token.revoke"
	EventTokenRevokeAll    EventType = "token.revoke_all"

	// Authorization events.
	EventPermissionResolve EventType = "authz.permission_resolve"
	EventAccessDenied      EventType = "authz.access_denied"

	// Administrative mutations.
	EventRealmCreate    EventType = "admin.realm_create"
	EventRealmEnable    EventType = "admin.realm_enable"
	EventRealmDisable   EventType = "admin.realm_disable"
	EventRealmDelete    EventType = "admin.realm_delete"
	EventUserCreate     EventType = "admin.user_create"
	EventUserEnable     EventType = "admin.user_enable"
	EventUserDisable    EventType = "admin.user_disable"
	EventUserDelete     EventType = "admin.user_delete"
	EventPasswordChange EventType = "admin.password_change"
	EventRoleAssign     EventType = "admin.role_assign"
	EventRoleRemove     EventType = "admin.role_remove"
	EventPolicyBind     EventType = "admin.policy_bind"
	EventPolicyUnbind   EventType = "admin.policy_unbind"
)

// EventStatus is the outcome of the audited operation.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// Event is a single audit record.
type Event struct {
	Type      EventType      `json:"type"`
	Status    EventStatus    `json:"status"`
	RealmID   string         `json:"realm_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	TokenID   string         `json:"token_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use. Errors are the sink's problem to report; emitters ignore them.
type Sink interface {
	Record(ctx context.Context, event *Event) error
	Close() error
}

// Emit stamps the event and hands it to the sink, swallowing sink errors. A
// nil sink is allowed and drops the event.
func Emit(ctx context.Context, sink Sink, event *Event) {
	if sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = sink.Record(ctx, event)
}
