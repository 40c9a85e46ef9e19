package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped)
// so the broadcast services can decide between failing open and aborting a dispatch.
//
//   - ErrNotFound: row does not exist (no broadcast config, unknown team member)
//   - ErrInvalidState: value rejected before reaching the store
//   - ErrUnavailable: store or broker temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
