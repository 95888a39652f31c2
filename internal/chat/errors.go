package chat

import "errors"

var (
	// ErrServerStopped - returns when server is stopped and does not serve listeners anymore.
	ErrServerStopped = errors.New("chat.Server: stopped")

	// ErrStopTimeout - returns by Stop when some sessions did not finish in time.
	ErrStopTimeout = errors.New("chat.Server: stop timeout expired")
)
