package steady_fetch

import (
	"time"

	"github.com/google/uuid"
)

// startMinuteTimer fires on every minute boundary, when the limiter's
// request windows roll over
func (q *Queue) startMinuteTimer() {
	timer := time.NewTimer(untilNextMinute())
	defer timer.Stop()

	for {
		select {
		case <-q.quit:
			return
		case <-timer.C:
			q.onMinuteChange()
			timer.Reset(untilNextMinute())
		}
	}
}

// onMinuteChange announces the budget rollover and wakes the dispatcher in
// case tasks were held back on budget
func (q *Queue) onMinuteChange() {
	q.emitEvent(EventBudgetReset, uuid.Nil, map[string]any{
		"window_start": time.Now().Truncate(time.Minute).Format(time.RFC3339),
	})

	select {
	case q.launchpad <- struct{}{}:
	default:
	}
}

func untilNextMinute() time.Duration {
	now := time.Now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}
