package reconcile

import "errors"

// ErrForbidden means the entry targets a natural key owned by a different
// user. Never retried by the client.
var ErrForbidden = errors.New("forbidden: record owned by another user")
