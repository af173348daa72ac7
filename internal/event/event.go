// Package event holds the normalized change shapes every other component
// communicates through. Delta engines produce them, destinations consume them.
package event

import "encoding/json"

// Type classifies a change group.
type Type string

const (
	BindingAdded   Type = "binding_added"
	BindingRemoved Type = "binding_removed"
)

// Source records which pipeline produced an event. Destinations use it for
// display only.
type Source string

const (
	SourceAssetFeed Source = "asset-feed"
	SourceAuditLog  Source = "audit-log"
)

// Condition is the normalized form of an IAM conditional expression. A nil
// *Condition means the binding is unconditional.
type Condition struct {
	Expression  string `json:"expression"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ConditionKey is a comparable value used as part of the delta engines'
// grouping keys. Two conditions collapse to the same key iff their normalized
// triples are equal, or both are absent.
type ConditionKey struct {
	Set         bool
	Expression  string
	Title       string
	Description string
}

// Key returns the comparable grouping key for c. Safe on a nil receiver.
func (c *Condition) Key() ConditionKey {
	if c == nil {
		return ConditionKey{}
	}
	return ConditionKey{
		Set:         true,
		Expression:  c.Expression,
		Title:       c.Title,
		Description: c.Description,
	}
}

// ChangeGroup is one reportable unit of change: the members newly granted (or,
// in principle, revoked) for a given role and condition. Members is never
// empty by the time a group reaches a destination.
type ChangeGroup struct {
	Type      Type
	Role      string
	Condition *Condition
	Members   []string
}

// IamChange is one notifiable occurrence. It is only ever constructed with a
// non-empty Changes slice; group order is the order the engine discovered them
// and is preserved end to end.
type IamChange struct {
	ResourceType    string
	ResourceName    string
	ResourceDisplay string

	// Actor is the identity that made the change. Audit records carry it,
	// asset feeds do not.
	Actor string

	Source    Source
	Timestamp string // ISO-8601; empty means unknown
	LogsURL   string // empty means omit from rendering

	// Raw is the decoded record the event was derived from, kept for
	// diagnostics. Destinations never interpret it.
	Raw json.RawMessage

	Changes []ChangeGroup
}
