// Package throttle enforces a minimum interval between repeated requests for
// the same key (an email address). It exists to stay under the Auth
// provider's confirmation-email limit, so it is advisory: Wait and Touch are
// separate calls and two racing requests may both pass.
package throttle

import (
	"context"
	"math"
	"strings"
	"time"
)

// DefaultInterval sits just above the provider's ten second email limit.
const DefaultInterval = 12 * time.Second

// Throttle is implemented by Memory and Redis.
type Throttle interface {
	// Wait returns how long key must still wait. Zero means go ahead.
	Wait(ctx context.Context, key string) (time.Duration, error)

	// Touch starts a new interval for key.
	Touch(ctx context.Context, key string) error
}

// NormalizeKey folds case and whitespace so "A@x.com " and "a@x.com" share
// one window.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Seconds rounds a wait up to whole seconds for user-facing messages.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
