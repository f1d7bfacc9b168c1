package hrclient

import (
	"context"
	"time"

	agenterrors "github.com/gdshr/attendance-agent/internal/common/errors"
)

// doWithRetry runs fn up to attempts times, doubling the backoff after
// each failure (2s, 4s with the defaults). Auth rejections abort
// immediately: retrying a revoked device only hammers the server.
func doWithRetry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if agenterrors.IsAuthRejected(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return agenterrors.Transient("retry cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
