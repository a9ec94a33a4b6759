package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking/internal/interval"
)

// Violation is a pair of committed appointments that share a room or a doctor
// within one organization and overlap in time.
type Violation struct {
	OrganizationID uuid.UUID
	Resource       Resource
	ResourceID     uuid.UUID
	First          Appointment
	Second         Appointment
}

type AuditReport struct {
	From       time.Time
	To         time.Time
	Scanned    int
	Violations []Violation
}

type resourceKey struct {
	org      uuid.UUID
	resource Resource
	id       uuid.UUID
}

// FindViolations groups appointments by tenant+room and tenant+doctor and
// reports every overlapping pair within a group.
func FindViolations(appts []Appointment) []Violation {
	groups := make(map[resourceKey][]Appointment)
	for _, a := range appts {
		rk := resourceKey{org: a.OrganizationID, resource: ResourceRoom, id: a.RoomID}
		dk := resourceKey{org: a.OrganizationID, resource: ResourceDoctor, id: a.DoctorID}
		groups[rk] = append(groups[rk], a)
		groups[dk] = append(groups[dk], a)
	}

	keys := make([]resourceKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].org != keys[j].org {
			return keys[i].org.String() < keys[j].org.String()
		}
		if keys[i].resource != keys[j].resource {
			return keys[i].resource > keys[j].resource // room before doctor
		}
		return keys[i].id.String() < keys[j].id.String()
	})

	var out []Violation
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		spans := make([]interval.Interval, len(group))
		for i, a := range group {
			spans[i] = a.Interval()
		}
		for _, p := range interval.FindOverlaps(spans) {
			out = append(out, Violation{
				OrganizationID: k.org,
				Resource:       k.resource,
				ResourceID:     k.id,
				First:          group[p.A],
				Second:         group[p.B],
			})
		}
	}
	return out
}

// AuditOverlaps scans every tenant's appointments intersecting [from, to) and
// reports double bookings. A non-empty report means the booking invariant was
// broken somewhere outside CreateAppointment.
func (s *Service) AuditOverlaps(ctx context.Context, from, to time.Time) (*AuditReport, error) {
	appts, err := s.repo.ListAppointmentsInWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load appointments for audit: %w", err)
	}

	report := &AuditReport{
		From:       from,
		To:         to,
		Scanned:    len(appts),
		Violations: FindViolations(appts),
	}

	for _, v := range report.Violations {
		s.logger.Error().
			Str("organization_id", v.OrganizationID.String()).
			Str("resource", string(v.Resource)).
			Str("resource_id", v.ResourceID.String()).
			Str("first_id", v.First.ID.String()).
			Str("second_id", v.Second.ID.String()).
			Time("first_start", v.First.StartAt).
			Time("second_start", v.Second.StartAt).
			Msg("double booking detected")
	}

	return report, nil
}
