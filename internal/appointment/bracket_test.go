package appointment

import (
	"testing"
	"time"

	"github.com/hackgods/appointment-booking/internal/interval"
)

func contains(outer, inner interval.Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

func TestDayBracket_SameDayUTC(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	b := DayBracket(start, end, time.UTC)

	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !b.Start.Equal(want) {
		t.Errorf("bracket start = %s, want %s", b.Start, want)
	}
	if want := time.Date(2025, 3, 10, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC); !b.End.Equal(want) {
		t.Errorf("bracket end = %s, want %s", b.End, want)
	}
}

func TestDayBracket_TenantTimezone(t *testing.T) {
	ny, ok := LoadLocation("America/New_York")
	if !ok {
		t.Fatal("expected America/New_York to load")
	}

	// 03:00Z on the 10th is still the evening of the 9th in New York.
	start := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 10, 3, 30, 0, 0, time.UTC)

	b := DayBracket(start, end, ny)

	if want := time.Date(2025, 3, 9, 0, 0, 0, 0, ny); !b.Start.Equal(want) {
		t.Errorf("bracket start = %s, want %s", b.Start, want)
	}
	if want := time.Date(2025, 3, 9, 23, 59, 59, int(time.Second-time.Nanosecond), ny); !b.End.Equal(want) {
		t.Errorf("bracket end = %s, want %s", b.End, want)
	}
	if !contains(b, interval.New(start, end)) {
		t.Error("bracket must contain the candidate")
	}
}

func TestDayBracket_MultiDay(t *testing.T) {
	start := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 12, 2, 0, 0, 0, time.UTC)

	b := DayBracket(start, end, time.UTC)

	if !b.Start.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected bracket start %s", b.Start)
	}
	if b.End.Before(time.Date(2025, 3, 12, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("unexpected bracket end %s", b.End)
	}
}

func TestDayBracket_AlwaysContainsCandidate(t *testing.T) {
	zones := []string{"UTC", "Pacific/Kiritimati", "Pacific/Pago_Pago", "Asia/Kolkata", "Europe/London"}
	start := time.Date(2025, 10, 26, 0, 30, 0, 0, time.UTC)
	for _, z := range zones {
		loc, _ := LoadLocation(z)
		for h := 0; h < 48; h += 5 {
			s := start.Add(time.Duration(h) * time.Hour)
			e := s.Add(45 * time.Minute)
			if b := DayBracket(s, e, loc); !contains(b, interval.New(s, e)) {
				t.Fatalf("%s: bracket %v does not contain [%s, %s)", z, b, s, e)
			}
		}
	}
}

func TestLoadLocation_Fallback(t *testing.T) {
	loc, ok := LoadLocation("Not/AZone")
	if ok || loc != time.UTC {
		t.Errorf("expected UTC fallback, got %v ok=%v", loc, ok)
	}
	loc, ok = LoadLocation("")
	if ok || loc != time.UTC {
		t.Errorf("expected UTC fallback for empty name, got %v ok=%v", loc, ok)
	}
}
