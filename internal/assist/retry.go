package assist

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MaxRetries is the number of retries after the first attempt.
const MaxRetries = 5

// Backoff returns the retry delays base, 2*base, 4*base and so on.
func Backoff(base time.Duration) []time.Duration {
	if base <= 0 {
		base = time.Second
	}
	out := make([]time.Duration, MaxRetries)
	for i := range out {
		out[i] = base << i
	}
	return out
}

// retry runs fn until it succeeds or the delays run out. Only the last error
// is returned.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	for i, d := range c.delays {
		if err == nil {
			return nil
		}
		c.log.Debug("attempt failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Duration("delay", d),
			zap.Error(err))
		if serr := c.sleep(ctx, d); serr != nil {
			return serr
		}
		err = fn()
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
