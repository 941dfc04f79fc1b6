package models

import "time"

// DownloadSession is an authorized channel to one download client. It lives
// for a single phase of a single workflow run and is never reused.
type DownloadSession struct {
	BaseURL   string
	SID       string // empty when the client does not require a login
	CreatedAt time.Time
}
