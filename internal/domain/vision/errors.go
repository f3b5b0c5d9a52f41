package vision

import "errors"

// ErrThrottled indicates a transient provider error (throttling, timeout,
// malformed structured output). Callers retry with bounded backoff.
var ErrThrottled = errors.New("vision: provider throttled")
