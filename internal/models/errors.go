package models

import "errors"

// Error kinds shared by both remote APIs. Callers match them with errors.Is.
var (
	// ErrTransport means the remote API could not be reached.
	ErrTransport = errors.New("transport error")
	// ErrAuth means the remote API rejected the credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrRemoteRejected means the remote API was reachable but refused the request.
	ErrRemoteRejected = errors.New("request rejected")
	// ErrNotFound means a nickname is absent from the identity map.
	ErrNotFound = errors.New("server not found")
)
