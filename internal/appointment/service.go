package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-booking/internal/config"
	"github.com/hackgods/appointment-booking/internal/db"
	"github.com/hackgods/appointment-booking/internal/interval"
	redisclient "github.com/hackgods/appointment-booking/internal/redis"
	"github.com/hackgods/appointment-booking/internal/retry"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	policy retry.Policy
	logger zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	return &Service{
		repo:   repo,
		locker: locker,
		policy: cfg.RetryPolicy(),
		logger: logger.With().Str("component", "appointment").Logger(),
	}
}

// IsTransient reports errors that are resolved by re-running the whole booking
// attempt: Postgres serialization failures and deadlocks.
func IsTransient(err error) bool {
	return db.IsSerializationFailure(err)
}

// CreateAppointment books a doctor and a room for [StartAt, EndAt).
//
// Each attempt runs one Serializable transaction that re-reads the tenant's
// room and doctor appointments around the candidate, rejects any overlap
// (room first, then doctor), and inserts the appointment with its devices.
// Concurrent attempts that both saw no conflict cannot both commit; the loser
// gets a serialization failure and is retried with backoff, at which point it
// sees the winner's row and fails with a conflict.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	in = normalizeInput(in)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	log := s.logger.With().
		Str("organization_id", in.OrganizationID.String()).
		Str("room_id", in.RoomID.String()).
		Str("doctor_id", in.DoctorID.String()).
		Logger()

	policy := s.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("booking attempt aborted, retrying")
	}

	lockKeys := []string{
		redisclient.RoomLockKey(in.OrganizationID, in.RoomID),
		redisclient.DoctorLockKey(in.OrganizationID, in.DoctorID),
	}

	var created *Appointment
	book := func(ctx context.Context) error {
		appt, err := s.bookOnce(ctx, in)
		if err != nil {
			return err
		}
		created = appt
		return nil
	}
	err := retry.Do(ctx, policy, IsTransient, func(ctx context.Context) error {
		err := s.locker.WithLocks(ctx, lockKeys, book)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// the transaction alone still rejects overlaps
			log.Warn().Err(err).Msg("booking lock unavailable, booking without it")
			return book(ctx)
		}
		return err
	})
	if err != nil {
		switch {
		case IsConflict(err):
			log.Info().Err(err).Msg("booking rejected")
		case retry.IsExhausted(err):
			log.Error().Err(err).Msg("booking gave up on contention")
		}
		return nil, err
	}

	log.Info().Str("appointment_id", created.ID.String()).Msg("appointment booked")
	return created, nil
}

func (s *Service) bookOnce(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	var created *Appointment

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		org, err := tx.GetOrganization(ctx, in.OrganizationID)
		if err != nil {
			return err
		}
		if err := tx.ValidateReferences(ctx, in); err != nil {
			return err
		}

		loc, ok := LoadLocation(org.Timezone)
		if !ok && org.Timezone != "" {
			s.logger.Warn().Str("timezone", org.Timezone).Msg("unknown organization timezone, bracketing in UTC")
		}
		bracket := DayBracket(in.StartAt, in.EndAt, loc)
		candidate := in.Interval()

		byRoom, err := tx.ListRoomAppointments(ctx, in.OrganizationID, in.RoomID, bracket)
		if err != nil {
			return fmt.Errorf("list room appointments: %w", err)
		}
		if existing := firstOverlap(byRoom, candidate); existing != nil {
			return &ConflictError{Resource: ResourceRoom, ResourceID: in.RoomID, Existing: *existing}
		}

		byDoctor, err := tx.ListDoctorAppointments(ctx, in.OrganizationID, in.DoctorID, bracket)
		if err != nil {
			return fmt.Errorf("list doctor appointments: %w", err)
		}
		if existing := firstOverlap(byDoctor, candidate); existing != nil {
			return &ConflictError{Resource: ResourceDoctor, ResourceID: in.DoctorID, Existing: *existing}
		}

		appt := &Appointment{
			ID:             uuid.New(),
			OrganizationID: in.OrganizationID,
			DoctorID:       in.DoctorID,
			RoomID:         in.RoomID,
			ServiceID:      in.ServiceID,
			PatientID:      in.PatientID,
			StartAt:        in.StartAt,
			EndAt:          in.EndAt,
			DeviceIDs:      in.DeviceIDs,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.InsertAppointmentDevices(ctx, appt.ID, in.DeviceIDs); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, createdEvent(appt)); err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func firstOverlap(existing []Appointment, candidate interval.Interval) *Appointment {
	for i := range existing {
		if interval.Overlaps(existing[i].Interval(), candidate) {
			return &existing[i]
		}
	}
	return nil
}

func createdEvent(a *Appointment) EventLog {
	devices := make([]string, len(a.DeviceIDs))
	for i, d := range a.DeviceIDs {
		devices[i] = d.String()
	}
	// marshalling a map of strings cannot fail
	payload, _ := json.Marshal(map[string]any{
		"organization_id": a.OrganizationID.String(),
		"doctor_id":       a.DoctorID.String(),
		"room_id":         a.RoomID.String(),
		"patient_id":      a.PatientID.String(),
		"service_id":      a.ServiceID.String(),
		"device_ids":      devices,
		"start_at":        a.StartAt.UTC(),
		"end_at":          a.EndAt.UTC(),
	})
	id := a.ID
	return EventLog{
		EventType:     EventAppointmentCreated,
		AppointmentID: &id,
		Payload:       payload,
	}
}

func normalizeInput(in CreateAppointmentInput) CreateAppointmentInput {
	in.StartAt = in.StartAt.UTC()
	in.EndAt = in.EndAt.UTC()

	seen := make(map[uuid.UUID]struct{}, len(in.DeviceIDs))
	devices := make([]uuid.UUID, 0, len(in.DeviceIDs))
	for _, d := range in.DeviceIDs {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		devices = append(devices, d)
	}
	in.DeviceIDs = devices
	return in
}

func validateInput(in CreateAppointmentInput) error {
	switch {
	case in.OrganizationID == uuid.Nil:
		return invalid("organization is required")
	case in.DoctorID == uuid.Nil:
		return invalid("doctor_id is required")
	case in.ServiceID == uuid.Nil:
		return invalid("service_id is required")
	case in.RoomID == uuid.Nil:
		return invalid("room_id is required")
	case in.PatientID == uuid.Nil:
		return invalid("patient_id is required")
	case len(in.DeviceIDs) == 0:
		return invalid("at least one device is required")
	case in.StartAt.IsZero() || in.EndAt.IsZero():
		return invalid("start_at and end_at are required")
	case !in.Interval().Valid():
		return invalid("start_at must be before end_at")
	}
	for _, d := range in.DeviceIDs {
		if d == uuid.Nil {
			return invalid("device ids must not be empty")
		}
	}
	return nil
}

// GetAppointment retrieves one appointment of the tenant with its devices.
func (s *Service) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns the tenant's appointments intersecting [from, to),
// optionally limited to one room.
func (s *Service) ListAppointments(ctx context.Context, orgID uuid.UUID, roomID *uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if !interval.New(from, to).Valid() {
		return nil, invalid("from must be before to")
	}
	appts, err := s.repo.ListAppointments(ctx, orgID, roomID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) ListDirectory(ctx context.Context, orgID uuid.UUID, kind DirectoryKind) ([]DirectoryEntry, error) {
	if !kind.Valid() {
		return nil, invalid("unknown directory %q", kind)
	}
	entries, err := s.repo.ListDirectory(ctx, orgID, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return entries, nil
}
