package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking/internal/interval"
)

// Repository holds the tenant-scoped booking queries plus
// ListAppointmentsInWindow, the cross-tenant scan the overlap auditor runs.
type Repository interface {
	// WithTx runs fn inside one Serializable transaction. A nil return commits.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	// Read paths; not required to be consistent with in-flight bookings.
	GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, orgID uuid.UUID, roomID *uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListAppointmentsInWindow(ctx context.Context, from, to time.Time) ([]Appointment, error)
	ListDirectory(ctx context.Context, orgID uuid.UUID, kind DirectoryKind) ([]DirectoryEntry, error)
}

// TxRepository is the statement set available inside a booking transaction.
type TxRepository interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	// ValidateReferences checks doctor, room, service, patient and every device
	// belong to in.OrganizationID.
	ValidateReferences(ctx context.Context, in CreateAppointmentInput) error

	// For conflict checks: appointments of the tenant whose interval intersects bracket.
	ListRoomAppointments(ctx context.Context, orgID, roomID uuid.UUID, bracket interval.Interval) ([]Appointment, error)
	ListDoctorAppointments(ctx context.Context, orgID, doctorID uuid.UUID, bracket interval.Interval) ([]Appointment, error)

	// InsertAppointment stores a and fills CreatedAt/UpdatedAt.
	InsertAppointment(ctx context.Context, a *Appointment) error
	InsertAppointmentDevices(ctx context.Context, appointmentID uuid.UUID, deviceIDs []uuid.UUID) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
