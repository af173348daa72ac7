package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Transports and destinations return
// these (optionally wrapped) so callers can branch without string matching.
//
// - ErrNotFound: entity does not exist (cache miss, unknown destination kind)
// - ErrUnavailable: collaborator temporarily unreachable
// - ErrRateLimited: collaborator asked us to back off
// - ErrRejected: collaborator permanently refused the request
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrRateLimited = errors.New("rate limited")
	ErrRejected    = errors.New("rejected")
)
