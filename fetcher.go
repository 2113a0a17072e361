package creditsync

import "context"

// BalanceFetcher reads the authoritative balance of the signed-in user.
type BalanceFetcher interface {
	// FetchBalance returns the server's current balance. Any error means the read
	// failed for this round; it is never retried by the caller.
	FetchBalance(ctx context.Context) (Balance, error)
}

// FetcherFunc adapts a function to BalanceFetcher.
type FetcherFunc func(ctx context.Context) (Balance, error)

func (f FetcherFunc) FetchBalance(ctx context.Context) (Balance, error) { return f(ctx) }
