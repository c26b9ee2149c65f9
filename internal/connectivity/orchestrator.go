package connectivity

import (
	"context"
	"sync"

	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// Status is the orchestrator snapshot published to observers.
type Status struct {
	IsConnected bool `json:"isConnected"`
	IsSyncing   bool `json:"isSyncing"`
}

// CatalogueSyncer pulls remote hymn edits.
type CatalogueSyncer interface {
	SyncWithCloud(ctx context.Context) (int, error)
}

// QueueReplayer replays a user's pending profile writes.
type QueueReplayer interface {
	ProcessQueue(ctx context.Context, userID string) (profile.ReplayResult, error)
}

// Orchestrator owns the online/offline state and runs the reconnect sync
// on every disconnected to connected edge.
type Orchestrator struct {
	monitor   Monitor
	catalogue CatalogueSyncer
	queue     QueueReplayer
	identity  identity.Provider
	log       *logging.Logger

	mu          sync.Mutex
	status      Status
	running     bool
	unsubscribe func()
	observers   map[int]func(Status)
	next        int
	seq         uint64 // bumped on every transition, under mu
	wg          sync.WaitGroup

	pubMu     sync.Mutex
	published uint64 // seq of the last delivered status, under pubMu
}

// NewOrchestrator creates an orchestrator in the connected, idle state. Any
// collaborator may be nil; its step of the reconnect sync is then skipped.
func NewOrchestrator(monitor Monitor, catalogue CatalogueSyncer, queue QueueReplayer, ids identity.Provider) *Orchestrator {
	return &Orchestrator{
		monitor:   monitor,
		catalogue: catalogue,
		queue:     queue,
		identity:  ids,
		log:       logging.New("connectivity"),
		status:    Status{IsConnected: true},
		observers: make(map[int]func(Status)),
	}
}

// Start subscribes to the monitor. It is idempotent, and a no-op without a
// monitor.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unsubscribe != nil {
		return
	}
	if o.monitor == nil {
		o.log.Warn("start", "no connectivity monitor available, staying in current state")
		return
	}
	o.unsubscribe = o.monitor.Subscribe(o.handle)
}

// Stop detaches from the monitor. In-flight syncs keep running; use Wait.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Wait blocks until every started reconnect sync has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Status returns the current snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// IsConnected satisfies profile.StatusReader.
func (o *Orchestrator) IsConnected() bool {
	return o.Status().IsConnected
}

// Subscribe registers fn to receive every transition.
func (o *Orchestrator) Subscribe(fn func(Status)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.next
	o.next++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) handle(ms MonitorStatus) {
	connected := ms.Connected()

	o.mu.Lock()
	if connected == o.status.IsConnected {
		o.mu.Unlock()
		return
	}
	o.status.IsConnected = connected
	start := false
	if connected {
		start = !o.running
		if start {
			o.running = true
			o.wg.Add(1)
		}
		o.status.IsSyncing = true
	} else {
		o.status.IsSyncing = false
	}
	o.seq++
	snap, seq := o.status, o.seq
	o.mu.Unlock()

	o.log.Infof("transition", "connected=%t syncing=%t", snap.IsConnected, snap.IsSyncing)
	o.publish(snap, seq)
	if start {
		go o.magicSync()
	}
}

// magicSync pulls catalogue edits, then replays the signed-in user's queue.
// Failures are logged; the next reconnect edge retries.
func (o *Orchestrator) magicSync() {
	defer o.wg.Done()
	ctx := context.Background()

	if o.catalogue != nil {
		if n, err := o.catalogue.SyncWithCloud(ctx); err != nil {
			o.log.Error("magic_sync", err)
		} else if n > 0 {
			o.log.Infof("magic_sync", "applied %d hymn updates", n)
		}
	}

	if o.queue != nil && o.identity != nil {
		if id := o.identity.Current(); id.Authenticated() {
			if res, err := o.queue.ProcessQueue(ctx, id.UserID); err != nil {
				o.log.Error("magic_sync", err)
			} else {
				o.log.Infof("magic_sync", "user=%s replayed=%d skipped=%d", id.UserID, res.Processed, res.Skipped)
			}
		}
	}

	o.mu.Lock()
	o.running = false
	changed := o.status.IsSyncing
	o.status.IsSyncing = false
	if changed {
		o.seq++
	}
	snap, seq := o.status, o.seq
	o.mu.Unlock()

	if changed {
		o.publish(snap, seq)
	}
}

// publish delivers s to the observers unless a later transition has already
// been delivered.
func (o *Orchestrator) publish(s Status, seq uint64) {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	if seq <= o.published {
		return
	}
	o.published = seq

	o.mu.Lock()
	fns := make([]func(Status), 0, len(o.observers))
	for _, fn := range o.observers {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
