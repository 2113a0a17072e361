package creditsync

import "sync"

// Store is a single-slot cache for the current Balance. Every change is broadcast to
// subscribers synchronously, in subscription order, before Write returns.
//
// Subscribers must not call Write, Update or Clear from inside their callback.
type Store struct {
	// writeMu serializes a mutation together with its broadcast.
	writeMu sync.Mutex

	mu      sync.RWMutex
	value   Balance
	present bool
	subs    []*Subscription
}

// Subscription is a handle returned by Store.Subscribe.
type Subscription struct {
	store *Store
	fn    func(Balance, bool)
	once  sync.Once
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Read returns the last known balance. The bool is false if nothing has been written
// yet or the store was cleared.
func (s *Store) Read() (Balance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.present
}

// Write replaces the stored balance. Negative Remaining is stored as zero.
func (s *Store) Write(b Balance) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.publish(b.clamp(), true)
}

// Update atomically applies fn to the current balance and stores the result.
// If the store is empty fn is not called and Update returns false.
func (s *Store) Update(fn func(Balance) Balance) (Balance, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, ok := s.Read()
	if !ok {
		return Balance{}, false
	}
	next := fn(cur).clamp()
	s.publish(next, true)
	return next, true
}

// Clear empties the store and notifies subscribers with an absent value.
func (s *Store) Clear() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.publish(Balance{}, false)
}

// Subscribe registers fn to be called after every change.
func (s *Store) Subscribe(fn func(b Balance, ok bool)) *Subscription {
	sub := &Subscription{store: s, fn: fn}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// publish stores the value and notifies subscribers. Must be called with writeMu held.
func (s *Store) publish(b Balance, present bool) {
	s.mu.Lock()
	s.value = b
	s.present = present
	subs := make([]*Subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(b, present)
	}
}

// Close removes the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		s := sub.store
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, other := range s.subs {
			if other == sub {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	})
}
