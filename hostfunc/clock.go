package hostfunc

import (
	"context"
	"time"
)

// TimeNow reports the current host time in seconds since the epoch,
// registered under "time.now" by default backends.
func TimeNow(ctx context.Context, args []any) (any, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}
