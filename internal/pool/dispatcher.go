// Package pool implements the connection pool & dispatcher (C2): decides
// when a queued Call actually runs, subject to a global maxRequests cap and
// a per-host maxRequestsPerHost cap, with FIFO-within-host ordering and
// cross-host fairness.
//
// Grounded on coreengine/kernel/lifecycle.go's LifecycleManager (queued/
// running process accounting under a single RWMutex, heap-free FIFO scan
// here since spec.md §4.2 calls for host-fair FIFO rather than priority
// scheduling) and coreengine/kernel/resources.go's ResourceTracker (quota
// vs. usage accounting, adapted from per-process LLM/tool-call budgets to
// per-host in-flight call budgets).
package pool

import (
	"sync"
	"time"

	"github.com/vortex-gateway/vortex/internal/call"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// queuedEntry pairs a Call with the closure the dispatcher runs once it is
// promoted, matching the Call.Enqueue(cb) contract from spec.md §4.3.
type queuedEntry struct {
	c   *call.Call
	run func()
}

// Dispatcher implements call.Dispatcher: Enqueue appends to queued; a
// promotion pass (triggered on Enqueue and on every completion) moves calls
// to running subject to maxRequests and maxRequestsPerHost.
type Dispatcher struct {
	mu        sync.Mutex
	queued    []*queuedEntry
	running   map[*call.Call]struct{}
	hostCount map[string]int

	maxRequests        int
	maxRequestsPerHost int

	idlePool map[string]*pooledConn
	keepAlive time.Duration

	metrics *telemetry.Metrics
}

type pooledConn struct {
	lastUsed time.Time
}

// New creates a Dispatcher with the given global and per-host concurrency
// caps (spec.md §4.2 and §8 invariant 7).
func New(maxRequests, maxRequestsPerHost int, keepAlive time.Duration, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		running:            make(map[*call.Call]struct{}),
		hostCount:          make(map[string]int),
		maxRequests:        maxRequests,
		maxRequestsPerHost: maxRequestsPerHost,
		idlePool:           make(map[string]*pooledConn),
		keepAlive:          keepAlive,
		metrics:            metrics,
	}
}

// Enqueue appends the call to the queued list and runs a promotion pass.
func (d *Dispatcher) Enqueue(c *call.Call, run func()) {
	d.mu.Lock()
	d.queued = append(d.queued, &queuedEntry{c: c, run: run})
	d.mu.Unlock()
	d.promote()
}

// promote scans queued for calls that fit under both caps, favoring FIFO
// order within a host and skipping over calls whose host is currently
// saturated so a later call from a less-busy host can still advance
// (spec.md §4.2: "fairness across hosts is achieved by scanning queued for
// a host currently below its per-host limit before advancing").
func (d *Dispatcher) promote() {
	d.mu.Lock()
	var toRun []*queuedEntry
	remaining := d.queued[:0:0]

	for _, entry := range d.queued {
		if len(d.running) >= d.maxRequests && d.maxRequests > 0 {
			remaining = append(remaining, entry)
			continue
		}
		host := entry.c.Host()
		if d.maxRequestsPerHost > 0 && d.hostCount[host] >= d.maxRequestsPerHost {
			remaining = append(remaining, entry)
			continue
		}
		d.running[entry.c] = struct{}{}
		d.hostCount[host]++
		toRun = append(toRun, entry)
	}
	d.queued = remaining
	if d.metrics != nil {
		d.metrics.SetPoolQueueDepth(len(d.queued))
		d.metrics.SetPoolRunning(len(d.running))
	}
	d.mu.Unlock()

	for _, entry := range toRun {
		go d.runAndComplete(entry)
	}
}

func (d *Dispatcher) runAndComplete(entry *queuedEntry) {
	defer d.complete(entry.c)
	entry.run()
}

func (d *Dispatcher) complete(c *call.Call) {
	d.mu.Lock()
	delete(d.running, c)
	d.hostCount[c.Host()]--
	if d.hostCount[c.Host()] <= 0 {
		delete(d.hostCount, c.Host())
	}
	d.mu.Unlock()
	d.promote()
}

// QueuedCalls returns a concurrent-safe shallow copy of the queued list
// (spec.md §4.2's queuedCalls()).
func (d *Dispatcher) QueuedCalls() []*call.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*call.Call, 0, len(d.queued))
	for _, e := range d.queued {
		out = append(out, e.c)
	}
	return out
}

// RunningCalls returns a concurrent-safe shallow copy of the running set
// (spec.md §4.2's runningCalls()).
func (d *Dispatcher) RunningCalls() []*call.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*call.Call, 0, len(d.running))
	for c := range d.running {
		out = append(out, c)
	}
	return out
}

// CancelQueued drops a call from the queued list without running it
// (spec.md §4.2: "a queued call is dropped").
func (d *Dispatcher) CancelQueued(c *call.Call) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.queued {
		if e.c == c {
			d.queued = append(d.queued[:i], d.queued[i+1:]...)
			c.Cancel()
			return true
		}
	}
	return false
}

// MarkIdle returns a released connection to the keyed idle pool. An entry
// older than keepAlive is discarded when AcquireIdle finds it, and EvictIdle
// removes every such entry, matching spec.md §4.2's "idle eviction happens
// after keepAliveDuration with no checkout".
func (d *Dispatcher) MarkIdle(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idlePool[address] = &pooledConn{lastUsed: time.Now()}
}

// AcquireIdle returns true and consumes a pooled connection for address if
// one is present and still within keepAlive.
func (d *Dispatcher) AcquireIdle(address string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn, ok := d.idlePool[address]
	if !ok {
		return false
	}
	delete(d.idlePool, address)
	if d.keepAlive > 0 && time.Since(conn.lastUsed) > d.keepAlive {
		return false
	}
	return true
}

// EvictIdle removes every pooled connection older than keepAlive.
func (d *Dispatcher) EvictIdle() {
	if d.keepAlive <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, conn := range d.idlePool {
		if time.Since(conn.lastUsed) > d.keepAlive {
			delete(d.idlePool, addr)
		}
	}
}
