package mailbox

import (
	"context"
	"time"
)

// WaitForResponse polls the slot until a response is present or timeout
// elapses. It never spins faster than pollInterval and returns ErrTimedOut
// no earlier than timeout and no later than timeout plus one poll interval.
// A timeout leaves the slot untouched: the outcome of the in-flight prompt
// is unknown, not rolled back, and a late response still lands in history.
func (s *Service) WaitForResponse(
	ctx context.Context,
	timeout, pollInterval time.Duration,
) (string, error) {
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if response, ok := s.currentResponse(); ok {
			return response, nil
		}

		if !time.Now().Before(deadline) {
			return "", ErrTimedOut
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
