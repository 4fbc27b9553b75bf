// Package sync owns the console's local view of the remote attribute and
// rule collections.
//
// The caches are the single source of truth for everything rendered from
// those collections; no other component writes them. Each refresh replaces
// a cache wholesale with the service's response (the service provides no
// change deltas, so there is nothing to merge) and re-renders every
// dependent view through registered callbacks.
//
// Concurrent refreshes of one collection are last-write-wins: each refresh
// takes a monotonically increasing sequence number when it starts, and a
// response is discarded if a younger refresh already applied by the time it
// resolves. An out-of-order response therefore never overwrites a more
// recent render.
package sync

import (
	"context"
	"sync"

	"github.com/ruledesk/ruledesk/internal/types"
)

// Client is the slice of the resource client the synchronizer needs.
type Client interface {
	ListAttributes(ctx context.Context) ([]string, error)
	ListRules(ctx context.Context) ([]types.Rule, error)
}

// Synchronizer caches the attribute and rule collections and re-renders
// dependent views after every applied refresh.
type Synchronizer struct {
	client Client

	mu           sync.Mutex
	attrs        []string
	rules        []types.Rule
	attrSeq      uint64 // last refresh started
	attrApplied  uint64 // last refresh applied
	ruleSeq      uint64
	ruleApplied  uint64
	onAttributes []func([]string)
	onRules      []func([]types.Rule)
}

// New creates a synchronizer with empty caches.
func New(client Client) *Synchronizer {
	return &Synchronizer{client: client}
}

// OnAttributes registers a view callback re-rendered after every applied
// attributes refresh. Callbacks receive a private copy of the cache.
func (s *Synchronizer) OnAttributes(fn func([]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAttributes = append(s.onAttributes, fn)
}

// OnRules registers a view callback re-rendered after every applied rules
// refresh. Both the selection list and the management list hang off this.
func (s *Synchronizer) OnRules(fn func([]types.Rule)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRules = append(s.onRules, fn)
}

// RefreshAttributes fetches the attribute collection and replaces the cache.
// A response that resolves after a newer refresh has applied is discarded.
func (s *Synchronizer) RefreshAttributes(ctx context.Context) error {
	s.mu.Lock()
	s.attrSeq++
	seq := s.attrSeq
	s.mu.Unlock()

	attrs, err := s.client.ListAttributes(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if seq <= s.attrApplied {
		s.mu.Unlock()
		return nil
	}
	s.attrApplied = seq
	s.attrs = attrs
	s.mu.Unlock()

	s.renderAttributes()
	return nil
}

// renderAttributes re-renders every attribute view from the current cache.
// Views always see the latest applied state, never the snapshot of the
// refresh that happened to trigger the render.
func (s *Synchronizer) renderAttributes() {
	s.mu.Lock()
	callbacks := s.onAttributes
	snapshot := copyStrings(s.attrs)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(snapshot)
	}
}

// RefreshRules fetches the rule collection and replaces the cache.
// Same last-write-wins discipline as RefreshAttributes.
func (s *Synchronizer) RefreshRules(ctx context.Context) error {
	s.mu.Lock()
	s.ruleSeq++
	seq := s.ruleSeq
	s.mu.Unlock()

	rules, err := s.client.ListRules(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if seq <= s.ruleApplied {
		s.mu.Unlock()
		return nil
	}
	s.ruleApplied = seq
	s.rules = rules
	s.mu.Unlock()

	s.renderRules()
	return nil
}

// renderRules re-renders every rule view from the current cache.
func (s *Synchronizer) renderRules() {
	s.mu.Lock()
	callbacks := s.onRules
	snapshot := copyRules(s.rules)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(snapshot)
	}
}

// Attributes returns a copy of the cached attribute collection.
func (s *Synchronizer) Attributes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyStrings(s.attrs)
}

// Rules returns a copy of the cached rule collection, in server order.
func (s *Synchronizer) Rules() []types.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRules(s.rules)
}

// RuleByID looks up a cached rule.
func (s *Synchronizer) RuleByID(id int64) (types.Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return types.Rule{}, false
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyRules(in []types.Rule) []types.Rule {
	out := make([]types.Rule, len(in))
	copy(out, in)
	return out
}
