package luxanalytics

import "time"

// NetworkStatus reports link reachability. Pipeline consults IsOnline
// before attempting a flush. Embedding applications on platforms with a
// reachability API (Network.framework, ConnectivityManager, NetworkInformation)
// should implement this themselves; AlwaysOnline is the default.
type NetworkStatus interface {
	IsOnline() bool
	// WaitForOnline blocks until the link is reachable or timeout elapses,
	// returning true if it became reachable. Implementations for which
	// waiting is meaningless may simply return IsOnline() immediately.
	WaitForOnline(timeout time.Duration) bool
}

// AlwaysOnline is the default NetworkStatus: it never blocks flush.
type AlwaysOnline struct{}

// IsOnline always returns true.
func (AlwaysOnline) IsOnline() bool { return true }

// WaitForOnline returns true immediately.
func (AlwaysOnline) WaitForOnline(time.Duration) bool { return true }
