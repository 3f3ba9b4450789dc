package eventbus

import "errors"

// ErrUnknownTopic is returned by Subscribe for a topic outside the fixed
// namespace §4.H names.
var ErrUnknownTopic = errors.New("eventbus: unknown topic")
