// Package scheduler runs background refresh attempts at fixed times of
// day through a bounded worker pool.
package scheduler

import "context"

// Job is one unit of background work.
type Job interface {
	// Execute runs the job. Implementations must respect ctx cancellation.
	Execute(ctx context.Context) error

	// UserID identifies whose data the job touches, for logging.
	UserID() string

	// Description names the job for logging.
	Description() string
}
