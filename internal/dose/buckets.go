package dose

import (
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

// Buckets partitions non-completed groups for a timeline. Input order is
// preserved inside each bucket.
type Buckets struct {
	Overdue []DoseGroup `json:"overdue"`
	Now     []DoseGroup `json:"now"`
	Next    []DoseGroup `json:"next"`
	Later   []DoseGroup `json:"later"`
}

// Len is the number of groups across all buckets.
func (b Buckets) Len() int {
	return len(b.Overdue) + len(b.Now) + len(b.Next) + len(b.Later)
}

// BucketByProximity drops completed groups, sends missed ones to Overdue and
// places the rest by TimeContext.
func BucketByProximity(groups []DoseGroup, takenLogs []health.MedicationLog, now time.Time) Buckets {
	b := Buckets{
		Overdue: []DoseGroup{},
		Now:     []DoseGroup{},
		Next:    []DoseGroup{},
		Later:   []DoseGroup{},
	}

	for _, g := range groups {
		switch Status(g.Time, g.ScheduleIDs(), takenLogs, now) {
		case StatusCompleted:
			continue
		case StatusMissed:
			b.Overdue = append(b.Overdue, g)
			continue
		}

		switch TimeContext(g.Time, now) {
		case ContextNow:
			b.Now = append(b.Now, g)
		case ContextNext:
			b.Next = append(b.Next, g)
		default:
			b.Later = append(b.Later, g)
		}
	}
	return b
}
