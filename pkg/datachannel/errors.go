package datachannel

import "errors"

// Errors produced by the TCP data channel. AuthFailed and Protocol carry
// their detail in the message; the sentinels below let callers branch with
// errors.Is.
var (
	ErrAuthFailed = errors.New("datachannel: authentication failed")
	ErrTimeout    = errors.New("datachannel: connection timed out")
	ErrCancelled  = errors.New("datachannel: cancelled")
	ErrProtocol   = errors.New("datachannel: protocol error")
)
