package appointment

import (
	"sync"
	"time"
	_ "time/tzdata" // tenant timezones must resolve in minimal images

	"github.com/jinzhu/now"

	"github.com/hackgods/appointment-booking/internal/interval"
)

// DayBracket returns [start of startAt's day, end of endAt's day] in loc.
// It always contains [startAt, endAt); it only narrows the conflict queries
// and never decides a conflict by itself.
func DayBracket(startAt, endAt time.Time, loc *time.Location) interval.Interval {
	if loc == nil {
		loc = time.UTC
	}
	from := now.With(startAt.In(loc)).BeginningOfDay()
	to := now.With(endAt.In(loc)).EndOfDay()
	return interval.New(from, to)
}

var locations sync.Map // IANA name -> *time.Location

// LoadLocation resolves a tenant timezone, falling back to UTC for empty or
// unknown names. Any location yields a bracket that contains the candidate.
func LoadLocation(name string) (*time.Location, bool) {
	if name == "" {
		return time.UTC, false
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	locations.Store(name, loc)
	return loc, true
}
