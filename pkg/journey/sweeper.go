package journey

import (
	"context"
	"log/slog"
	"time"

	"github.com/autocrm/journey/pkg/persistence"
)

// Sweeper resumes enrollments parked at delay nodes once their resume time
// has elapsed. It is driven on a schedule by the sweeper daemon and is safe
// to run concurrently with workers: the executor's per-enrollment lock and
// terminal no-op make double sweeps harmless.
type Sweeper struct {
	persistence persistence.Persistence
	executor    *Executor
	logger      *slog.Logger
}

func NewSweeper(persistence persistence.Persistence, executor *Executor, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		persistence: persistence,
		executor:    executor,
		logger:      logger.With("module", "sweeper"),
	}
}

// SweepDelays advances every active enrollment whose resume time is at or
// before now. It returns the number of enrollments resumed. A failing
// enrollment does not stop the sweep.
func (s *Sweeper) SweepDelays(ctx context.Context, now time.Time) (int, error) {
	due, err := s.persistence.EnrollmentRepository().DueEnrollments(ctx, now)
	if err != nil {
		return 0, err
	}

	if len(due) == 0 {
		return 0, nil
	}

	s.logger.Info("Sweeping due enrollments", "count", len(due))

	resumed := 0

	for _, enrollment := range due {
		if err := s.executor.Advance(ctx, enrollment.ID); err != nil {
			s.logger.Error("Failed to resume enrollment",
				"enrollment_id", enrollment.ID,
				"error", err)

			continue
		}

		resumed++
	}

	return resumed, nil
}
