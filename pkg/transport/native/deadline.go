//go:build !js

package native

import (
	"context"
	"time"
)

// aLongTimeAgo is a deadline that has already passed.
var aLongTimeAgo = time.Unix(1, 0)

// bindDeadline applies ctx to one blocking net.Conn operation: its deadline
// becomes the operation deadline and cancellation expires it immediately.
// The returned func must be called once the operation returned.
func bindDeadline(ctx context.Context, set func(time.Time) error) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = set(deadline)
	} else {
		_ = set(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = set(aLongTimeAgo)
	})
	return func() { stop() }
}
