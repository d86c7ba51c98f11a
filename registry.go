package jingle

import (
	"fmt"
	"sync"
)

// Negotiator is what the Manager dispatches incoming actions to: a peer
// Session or a participant leg of a Conference.
type Negotiator interface {
	SID() string
	Peer() string
	State() State
	SetRemoteDescription(j *Jingle, kind SDPType) error
	HandleAccept(j *Jingle) error
	AddIceCandidate(contents []Content) error
	AddSource(contents []Content) error
	RemoveSource(contents []Content) error
	Terminate(reason string) bool
	SendTerminate(reason, text string)
}

type Registry struct {
	mu     sync.RWMutex
	bySID  map[string]Negotiator
	byPeer map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		bySID:  make(map[string]Negotiator),
		byPeer: make(map[string]string),
	}
}

func (r *Registry) Add(n Negotiator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySID[n.SID()]; ok {
		return fmt.Errorf("%w, sid = %v", ErrDuplicateSession, n.SID())
	}
	r.bySID[n.SID()] = n
	r.byPeer[n.Peer()] = n.SID()
	return nil
}

func (r *Registry) Get(sid string) (Negotiator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.bySID[sid]
	return n, ok
}

// GetByPeer returns the most recently added negotiator for peer.
func (r *Registry) GetByPeer(peer string) (Negotiator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sid, ok := r.byPeer[peer]
	if !ok {
		return nil, false
	}
	n, ok := r.bySID[sid]
	return n, ok
}

func (r *Registry) Remove(sid string) (Negotiator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.bySID[sid]
	if !ok {
		return nil, false
	}
	delete(r.bySID, sid)
	if r.byPeer[n.Peer()] == sid {
		delete(r.byPeer, n.Peer())
	}
	return n, true
}

// Each calls fn for a snapshot of the registered negotiators. fn may modify
// the registry.
func (r *Registry) Each(fn func(n Negotiator)) {
	r.mu.RLock()
	snapshot := make([]Negotiator, 0, len(r.bySID))
	for _, n := range r.bySID {
		snapshot = append(snapshot, n)
	}
	r.mu.RUnlock()

	for _, n := range snapshot {
		fn(n)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.bySID)
}
