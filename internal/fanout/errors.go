package fanout

import "errors"

// ErrSubscriptionClosed is returned by Next after Unsubscribe.
var ErrSubscriptionClosed = errors.New("fanout: subscription closed")
