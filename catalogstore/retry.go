package catalogstore

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const maxBackoff = 30 * time.Second

// isThrottlingError reports whether DynamoDB rejected the call for capacity reasons.
//
// Both provisioned and on-demand tables throttle on hot partitions and account
// quotas. They surface as ProvisionedThroughputExceededException or
// RequestLimitExceeded and clear once capacity refills. Every other failure is
// reported to the caller unchanged.
func isThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// backoffWait sleeps for an exponentially increasing duration with jitter.
// Returns false if the context is cancelled during the wait.
func backoffWait(ctx context.Context, base time.Duration, attempt int) bool {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}

	// Jitter: random value between 0 and delay
	delay += time.Duration(rand.Int64N(int64(delay)))

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// call runs fn, retrying throttled attempts up to maxRetries times.
func (s *DynamoStore) call(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !isThrottlingError(err) || attempt >= s.maxRetries {
			return err
		}
		s.logger.Warn("dynamodb throttled, backing off", slog.Int("attempt", attempt+1), slog.Any("error", err))
		if !backoffWait(ctx, s.retryBase, attempt) {
			return ctx.Err()
		}
	}
}
