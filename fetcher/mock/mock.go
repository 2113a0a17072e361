package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/creditsync"
)

// Fetcher is a mock balance endpoint for testing.
type Fetcher struct {
	mu        sync.Mutex
	balance   creditsync.Balance
	sequence  []creditsync.Balance
	err       error
	latency   time.Duration
	fetchFunc func(context.Context) (creditsync.Balance, error)

	callCount atomic.Int64
}

var _ creditsync.BalanceFetcher = (*Fetcher)(nil)

// Option configures a mock Fetcher.
type Option func(*Fetcher)

// New creates a mock fetcher with the given options.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		balance: creditsync.Balance{Remaining: 100, Tier: creditsync.TierFree},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithBalance sets the balance returned by every call.
func WithBalance(b creditsync.Balance) Option {
	return func(f *Fetcher) { f.balance = b }
}

// WithSequence makes successive calls return these balances in order. Once the
// sequence is exhausted the last one repeats.
func WithSequence(bs ...creditsync.Balance) Option {
	return func(f *Fetcher) { f.sequence = bs }
}

// WithError makes the fetcher always return this error.
func WithError(err error) Option {
	return func(f *Fetcher) { f.err = err }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(f *Fetcher) { f.latency = d }
}

// WithFetchFunc sets a custom fetch function.
func WithFetchFunc(fn func(context.Context) (creditsync.Balance, error)) Option {
	return func(f *Fetcher) { f.fetchFunc = fn }
}

// SetBalance changes the balance returned by later calls.
func (f *Fetcher) SetBalance(b creditsync.Balance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = b
	f.sequence = nil
}

// SetError changes the error returned by later calls. nil restores success.
func (f *Fetcher) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fetcher) FetchBalance(ctx context.Context) (creditsync.Balance, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			f.callCount.Add(1)
			return creditsync.Balance{}, ctx.Err()
		}
	}

	f.callCount.Add(1)

	f.mu.Lock()
	err, fn := f.err, f.fetchFunc
	f.mu.Unlock()

	if err != nil {
		return creditsync.Balance{}, err
	}
	if fn != nil {
		return fn(ctx)
	}
	return f.next(), nil
}

func (f *Fetcher) next() creditsync.Balance {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sequence) == 0 {
		return f.balance
	}
	b := f.sequence[0]
	if len(f.sequence) > 1 {
		f.sequence = f.sequence[1:]
	}
	return b
}

// CallCount returns the number of calls made to the fetcher.
func (f *Fetcher) CallCount() int64 { return f.callCount.Load() }
