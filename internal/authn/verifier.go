package authn

import (
	"context"
	"crypto/rsa"
	"errors"
	"runtime"

	"github.com/dmitrijs2005/gameauth/internal/token"
	"golang.org/x/sync/semaphore"
)

// ErrNoToken marks a request that carried no bearer token at all.
var ErrNoToken = errors.New("no bearer token")

// Verifier authenticates raw bearer tokens. Implementations never return a
// hard error: failures yield an unauthenticated Result.
type Verifier interface {
	Authenticate(ctx context.Context, rawToken string) Result
}

// BlockingVerifier decodes tokens on the calling goroutine.
type BlockingVerifier struct {
	codec *token.Codec
	key   *rsa.PublicKey
}

func NewBlockingVerifier(codec *token.Codec, key *rsa.PublicKey) *BlockingVerifier {
	return &BlockingVerifier{codec: codec, key: key}
}

func (v *BlockingVerifier) Authenticate(ctx context.Context, rawToken string) Result {
	if rawToken == "" {
		return Result{Err: ErrNoToken}
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}

	claims, err := v.codec.Decode(rawToken, v.key)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Principal: FromClaims(claims)}
}

// AsyncVerifier runs a Verifier on a bounded pool so that signature checks
// never hold more than the configured number of goroutines busy at once.
type AsyncVerifier struct {
	inner Verifier
	sem   *semaphore.Weighted
}

// NewAsyncVerifier wraps inner with a pool of the given size. A size below
// one means runtime.NumCPU().
func NewAsyncVerifier(inner Verifier, workers int) *AsyncVerifier {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &AsyncVerifier{inner: inner, sem: semaphore.NewWeighted(int64(workers))}
}

// AuthenticateAsync starts verification and returns a channel that receives
// exactly one Result.
func (v *AsyncVerifier) AuthenticateAsync(ctx context.Context, rawToken string) <-chan Result {
	ch := make(chan Result, 1)

	if rawToken == "" {
		ch <- Result{Err: ErrNoToken}
		return ch
	}

	go func() {
		if err := v.sem.Acquire(ctx, 1); err != nil {
			ch <- Result{Err: err}
			return
		}
		defer v.sem.Release(1)
		ch <- v.inner.Authenticate(ctx, rawToken)
	}()

	return ch
}

// Authenticate joins AuthenticateAsync. Cancellation of ctx yields an
// unauthenticated Result.
func (v *AsyncVerifier) Authenticate(ctx context.Context, rawToken string) Result {
	select {
	case r := <-v.AuthenticateAsync(ctx, rawToken):
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}
