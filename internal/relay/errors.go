package relay

import "errors"

// ErrNoSource is returned by NewMonitor when no status source is
// configured.
var ErrNoSource = errors.New("relay: status source is required")
