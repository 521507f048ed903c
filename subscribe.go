package stashbus

import (
	"reflect"
	"regexp"
	"sync"
	"sync/atomic"
)

// subEntry is one listener's registration: its key, the pattern set as given,
// and the compiled forms used on the notify hot path. Compilation happens
// once at subscribe time, never per notify.
type subEntry struct {
	key      ListenerKey
	patterns []string
	compiled []*regexp.Regexp
}

func (e *subEntry) matches(topic string) bool {
	for _, re := range e.compiled {
		if re.MatchString(topic) {
			return true
		}
	}
	return false
}

// subscriptions maps listener identities to topic-matching patterns. Reads
// (once per notify) vastly outnumber writes, so the entry table is a
// copy-on-write snapshot behind an atomic pointer: readers never take a lock,
// writers serialize on mu and publish a fresh map.
type subscriptions struct {
	mu   sync.Mutex
	snap atomic.Pointer[map[ListenerKey]*subEntry]
}

func newSubscriptions() *subscriptions {
	s := &subscriptions{}
	empty := make(map[ListenerKey]*subEntry)
	s.snap.Store(&empty)
	return s
}

// compilePattern anchors the pattern so it must match the whole topic name:
// "orders" selects exactly the topic "orders", ".*" selects every topic.
func compilePattern(p string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + p + ")$")
	if err != nil {
		return nil, &InvalidPatternError{Pattern: p, Err: err}
	}
	return re, nil
}

// subscribe replaces any existing entry for key with the given pattern set.
func (s *subscriptions) subscribe(key ListenerKey, patterns []string) error {
	if key.listener == nil {
		return ErrNilListener
	}
	if !reflect.TypeOf(key.listener).Comparable() {
		return ErrListenerNotComparable
	}
	if len(patterns) == 0 {
		return ErrNoPatterns
	}

	// Dedupe preserving first-occurrence order; compile before mutating
	// anything so a bad pattern leaves the old entry intact.
	seen := make(map[string]struct{}, len(patterns))
	entry := &subEntry{key: key}
	for _, p := range patterns {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		re, err := compilePattern(p)
		if err != nil {
			return err
		}
		entry.patterns = append(entry.patterns, p)
		entry.compiled = append(entry.compiled, re)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cloneLocked()
	next[key] = entry
	s.snap.Store(&next)
	return nil
}

// unsubscribe is idempotent; removing an absent key is a no-op.
func (s *subscriptions) unsubscribe(key ListenerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := *s.snap.Load()
	if _, ok := cur[key]; !ok {
		return
	}
	next := s.cloneLocked()
	delete(next, key)
	s.snap.Store(&next)
}

// subscribed reports whether key has a current entry whose pattern set is
// exactly equal, as a set, to the given patterns. Overlap is not enough.
func (s *subscriptions) subscribed(key ListenerKey, patterns []string) bool {
	entry, ok := (*s.snap.Load())[key]
	if !ok {
		return false
	}
	return patternSetEqual(entry.patterns, patterns)
}

// subscribers returns all currently subscribed keys.
func (s *subscriptions) subscribers() []ListenerKey {
	cur := *s.snap.Load()
	keys := make([]ListenerKey, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	return keys
}

// subscribersFor returns the keys whose pattern set contains at least one
// pattern matching the topic. Matching is evaluated fresh on every call
// against the cached compiled patterns, never memoized per event.
func (s *subscriptions) subscribersFor(topic string) []ListenerKey {
	cur := *s.snap.Load()
	var keys []ListenerKey
	for k, entry := range cur {
		if entry.matches(topic) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *subscriptions) cloneLocked() map[ListenerKey]*subEntry {
	cur := *s.snap.Load()
	next := make(map[ListenerKey]*subEntry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	return next
}

func patternSetEqual(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, p := range a {
		as[p] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, p := range b {
		bs[p] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for p := range as {
		if _, ok := bs[p]; !ok {
			return false
		}
	}
	return true
}

// Subscribe registers (or re-registers) a listener key for a pattern set.
// Subscribing an already-known key replaces its pattern set; the sets are not
// unioned. Every pattern must compile or the call fails with
// *InvalidPatternError and the previous entry survives untouched.
func (b *Bus) Subscribe(key ListenerKey, patterns ...string) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := b.subs.subscribe(key, patterns); err != nil {
		return err
	}
	b.logger.Debug().
		Str("listener", key.String()).
		Int("patterns", len(patterns)).
		Msg("stashbus: subscribed")
	return nil
}

// Unsubscribe removes a listener key. Unknown keys are a no-op.
func (b *Bus) Unsubscribe(key ListenerKey) {
	b.subs.unsubscribe(key)
}

// Subscribed reports whether key is registered with exactly this pattern set.
func (b *Bus) Subscribed(key ListenerKey, patterns ...string) bool {
	return b.subs.subscribed(key, patterns)
}

// Subscribers returns all currently subscribed listener keys.
func (b *Bus) Subscribers() []ListenerKey {
	return b.subs.subscribers()
}

// SubscribersFor returns the listener keys interested in a topic.
func (b *Bus) SubscribersFor(topic string) []ListenerKey {
	return b.subs.subscribersFor(topic)
}
