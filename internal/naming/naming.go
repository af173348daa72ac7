// Package naming resolves ancestor resource references (projects/123,
// folders/456, organizations/789) to human display names. Lookups fail soft:
// callers fall back to the raw reference and an "Unknown" display, a lookup
// error never aborts message processing.
package naming

import "context"

// Kind classifies the scope an ancestor reference points at. It doubles as
// the console scope key when building log URLs.
type Kind string

const (
	KindProject      Kind = "project"
	KindFolder       Kind = "folder"
	KindOrganization Kind = "organization"
)

// ScopeKey returns the console URL scope parameter for this kind.
func (k Kind) ScopeKey() string {
	if k == KindOrganization {
		return "organizationId"
	}
	return string(k)
}

// Resource is the resolved classification of an ancestor reference.
type Resource struct {
	Kind    Kind   `json:"kind"`
	ID      string `json:"id"`
	Display string `json:"display"`
}

// Resolver looks up display information for an ancestor reference.
type Resolver interface {
	Resolve(ctx context.Context, ancestor string) (Resource, error)
}

// Fallback is what callers degrade to when resolution fails. The kind stays
// project so log URLs keep a usable scope key.
func Fallback(ancestor string) Resource {
	return Resource{Kind: KindProject, ID: ancestor, Display: "Unknown"}
}
