package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// retry calls fn until it succeeds, attempts run out or ctx ends. The wait
// doubles after every failure. The last error is returned.
func retry(ctx context.Context, log zerolog.Logger, attempts int, wait time.Duration, fn func(context.Context) error) error {
	var err error
	for i := 1; ; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i >= attempts {
			return err
		}
		log.Warn().Err(err).Int("attempt", i).Dur("retry_in", wait).Msg("Connection attempt failed")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		wait *= 2
	}
}
