// Package connectivity tracks whether the device can reach the network and
// runs the reconnect sync.
package connectivity

import "sync"

// MonitorStatus is one report from a connectivity monitor.
// IsInternetReachable is nil when the monitor cannot tell.
type MonitorStatus struct {
	IsConnected         bool  `json:"isConnected"`
	IsInternetReachable *bool `json:"isInternetReachable"`
}

// Connected reports whether the status counts as online: connected, and not
// known to be unreachable.
func (s MonitorStatus) Connected() bool {
	return s.IsConnected && (s.IsInternetReachable == nil || *s.IsInternetReachable)
}

// Reachable builds a status with a known reachability.
func Reachable(connected, reachable bool) MonitorStatus {
	return MonitorStatus{IsConnected: connected, IsInternetReachable: &reachable}
}

// Monitor delivers status reports to subscribers.
type Monitor interface {
	Subscribe(fn func(MonitorStatus)) (unsubscribe func())
}

// listeners is a set of status callbacks invoked outside the lock.
type listeners struct {
	mu   sync.Mutex
	fns  map[int]func(MonitorStatus)
	next int
}

func (l *listeners) add(fn func(MonitorStatus)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(MonitorStatus))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

func (l *listeners) emit(s MonitorStatus) {
	l.mu.Lock()
	fns := make([]func(MonitorStatus), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// StaticMonitor is a Monitor driven by hand.
type StaticMonitor struct {
	subs listeners
}

// NewStaticMonitor creates a StaticMonitor with no subscribers.
func NewStaticMonitor() *StaticMonitor {
	return &StaticMonitor{}
}

func (m *StaticMonitor) Subscribe(fn func(MonitorStatus)) func() {
	return m.subs.add(fn)
}

// Report delivers s to every subscriber synchronously.
func (m *StaticMonitor) Report(s MonitorStatus) {
	m.subs.emit(s)
}

// Subscribers returns the number of active subscriptions.
func (m *StaticMonitor) Subscribers() int {
	return m.subs.len()
}
