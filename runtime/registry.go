// Package runtime handles envelope propagation between live connections.
// It routes traffic without containing business logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rodina-chat/contract"
	"rodina-chat/domain"
)

// group is one fan-out channel: the set of live sinks of a single
// identity. dead marks a group that has been dropped from the table so a
// late subscriber re-creates it instead of joining a detached instance.
type group struct {
	mu      sync.Mutex
	members map[contract.Sink]struct{}
	dead    bool
}

// Registry maps group names (one per identity) to live sinks.
//
// Locking is two-level: a read-write mutex guards the group table while a
// per-group mutex guards membership, so publishing to one user never
// serializes traffic of unrelated users. Groups are created on first
// subscribe and dropped once their last member leaves.
type Registry struct {
	mu              sync.RWMutex
	log             *slog.Logger
	groups          map[string]*group
	deliveryTimeout time.Duration
}

func NewRegistry(log *slog.Logger, deliveryTimeout time.Duration) *Registry {
	return &Registry{
		log:             log,
		groups:          make(map[string]*group),
		deliveryTimeout: deliveryTimeout,
	}
}

// Subscribe adds a sink to the group, creating the group on the fly.
// Subscribing an already-registered sink is a no-op.
func (r *Registry) Subscribe(groupID string, sink contract.Sink) {
	for {
		g := r.getOrCreate(groupID)
		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		g.members[sink] = struct{}{}
		g.mu.Unlock()
		return
	}
}

// Unsubscribe removes a sink from the group; absent members are ignored.
// The group entry is dropped once empty to prevent the table from growing
// with every identity ever seen.
func (r *Registry) Unsubscribe(groupID string, sink contract.Sink) {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return
	}

	g.mu.Lock()
	delete(g.members, sink)
	empty := len(g.members) == 0
	g.mu.Unlock()
	if !empty {
		return
	}

	// Re-check under both locks: a subscriber may have joined in between.
	r.mu.Lock()
	if current, ok := r.groups[groupID]; ok && current == g {
		g.mu.Lock()
		if len(g.members) == 0 {
			g.dead = true
			delete(r.groups, groupID)
		}
		g.mu.Unlock()
	}
	r.mu.Unlock()
}

// Publish delivers the envelope to every member of the group, best-effort.
// Membership is snapshotted at call time; connections joining or leaving
// mid-publish are not observed. A failed delivery is logged and skipped,
// it never aborts delivery to the remaining members.
func (r *Registry) Publish(ctx context.Context, groupID string, e domain.Envelope) int {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return 0
	}

	g.mu.Lock()
	sinks := make([]contract.Sink, 0, len(g.members))
	for sink := range g.members {
		sinks = append(sinks, sink)
	}
	g.mu.Unlock()

	delivered := 0
	for _, sink := range sinks {
		deliveryCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
		err := sink.Deliver(deliveryCtx, e)
		cancel()
		if err != nil {
			r.log.Warn("Envelope delivery failed",
				"group", groupID,
				"type", e.EnvelopeType(),
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Members reports the current size of a group. Mostly useful in tests and
// for the debug endpoint.
func (r *Registry) Members(groupID string) int {
	r.mu.RLock()
	g := r.groups[groupID]
	r.mu.RUnlock()
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (r *Registry) getOrCreate(groupID string) *group {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.groups[groupID]; ok {
		return g
	}
	g = &group{members: make(map[contract.Sink]struct{})}
	r.groups[groupID] = g
	return g
}
