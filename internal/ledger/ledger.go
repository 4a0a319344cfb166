// Package ledger records which (endpoint, event) and (device, event) pairs
// have already produced a notification.
package ledger

import (
	"sync"

	"github.com/quocanhngo/quakealert/internal/model"
)

const (
	// PruneThreshold is the set size above which PruneIfOversized trims a set
	PruneThreshold = 1000
	// PruneKeep is the number of most recently inserted ids kept after a trim
	PruneKeep = 500
)

// idSet is an insertion-ordered set of event ids
type idSet struct {
	order   []string
	members map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{members: make(map[string]struct{})}
}

func (s *idSet) has(id string) bool {
	_, ok := s.members[id]
	return ok
}

func (s *idSet) add(id string) {
	if s.has(id) {
		return
	}
	s.members[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *idSet) len() int {
	return len(s.order)
}

// prune keeps the newest keep ids and reports whether anything was dropped
func (s *idSet) prune(threshold, keep int) bool {
	if len(s.order) <= threshold {
		return false
	}
	kept := make([]string, keep)
	copy(kept, s.order[len(s.order)-keep:])
	s.order = kept
	s.members = make(map[string]struct{}, keep)
	for _, id := range kept {
		s.members[id] = struct{}{}
	}
	return true
}

// Ledger is the in-memory dedup state of the engine.
// Endpoint sets survive a device remapping of their token; device sets are the
// coarse gate checked before any delivery for a device.
type Ledger struct {
	mu        sync.Mutex
	endpoints map[string]*idSet
	devices   map[string]*idSet
	inflight  map[claimKey]struct{}
}

type claimKey struct {
	endpoint string
	eventID  string
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		endpoints: make(map[string]*idSet),
		devices:   make(map[string]*idSet),
		inflight:  make(map[claimKey]struct{}),
	}
}

// IsEndpointNotified reports whether endpoint already received eventID
func (l *Ledger) IsEndpointNotified(endpoint, eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.endpoints[endpoint]
	return ok && set.has(eventID)
}

// IsDeviceNotified reports whether deviceID already received eventID.
// Unseen devices get an empty tracking set.
func (l *Ledger) IsDeviceNotified(deviceID, eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.devices[deviceID]
	if !ok {
		l.devices[deviceID] = newIDSet()
		return false
	}
	return set.has(eventID)
}

// MarkEndpointNotified records that endpoint received eventID
func (l *Ledger) MarkEndpointNotified(endpoint, eventID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.endpoints[endpoint]
	if !ok {
		set = newIDSet()
		l.endpoints[endpoint] = set
	}
	set.add(eventID)
}

// MarkDeviceNotified records that deviceID received eventID
func (l *Ledger) MarkDeviceNotified(deviceID, eventID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.devices[deviceID]
	if !ok {
		set = newIDSet()
		l.devices[deviceID] = set
	}
	set.add(eventID)
}

// ClaimEndpoint reserves (endpoint, eventID) for one delivery attempt.
// It fails when the pair is already notified or another pass holds the claim,
// which makes check-then-send atomic per key. Every successful claim must be
// followed by ReleaseEndpoint.
func (l *Ledger) ClaimEndpoint(endpoint, eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.endpoints[endpoint]; ok && set.has(eventID) {
		return false
	}
	key := claimKey{endpoint: endpoint, eventID: eventID}
	if _, busy := l.inflight[key]; busy {
		return false
	}
	l.inflight[key] = struct{}{}
	return true
}

// ReleaseEndpoint drops the claim taken by ClaimEndpoint
func (l *Ledger) ReleaseEndpoint(endpoint, eventID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, claimKey{endpoint: endpoint, eventID: eventID})
}

// ResetAll clears every endpoint and device set
func (l *Ledger) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoints = make(map[string]*idSet)
	l.devices = make(map[string]*idSet)
}

// ResetDevice clears deviceID's set and the sets of the given endpoints,
// which the caller resolves from the endpoints currently mapped to the device.
// It returns how many endpoint sets were cleared.
func (l *Ledger) ResetDevice(deviceID string, endpoints []string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cleared := 0
	for _, ep := range endpoints {
		if _, ok := l.endpoints[ep]; ok {
			delete(l.endpoints, ep)
			cleared++
		}
	}
	delete(l.devices, deviceID)
	return cleared
}

// PruneIfOversized trims every set larger than PruneThreshold down to its
// PruneKeep most recently inserted ids. It returns the number of trimmed sets.
func (l *Ledger) PruneIfOversized() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for _, set := range l.endpoints {
		if set.prune(PruneThreshold, PruneKeep) {
			pruned++
		}
	}
	for _, set := range l.devices {
		if set.prune(PruneThreshold, PruneKeep) {
			pruned++
		}
	}
	return pruned
}

// Stats reports the size of the ledger
func (l *Ledger) Stats() model.LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := model.LedgerStats{
		EndpointSets: len(l.endpoints),
		DeviceSets:   len(l.devices),
	}
	for _, set := range l.endpoints {
		st.EndpointEntries += set.len()
	}
	for _, set := range l.devices {
		st.DeviceEntries += set.len()
	}
	return st
}
