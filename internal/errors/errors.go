package errors

import "errors"

// Remote gateway errors.
var (
	ErrTransport       = errors.New("transport failure")
	ErrAuthExpired     = errors.New("session expired")
	ErrServerRejected  = errors.New("server rejected request")
	ErrDecode          = errors.New("malformed response body")
	ErrMissingIdentity = errors.New("record has no remote id")
	ErrCancelled       = errors.New("request cancelled")
)

// Sync engine errors.
var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrCardNotFound   = errors.New("card not found")
)
