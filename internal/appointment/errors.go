package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRoomConflict   = errors.New("room is already booked for this time")
	ErrDoctorConflict = errors.New("doctor is already booked for this time")

	ErrInvalidRequest = errors.New("invalid appointment request")

	ErrOrganizationNotFound = errors.New("organization not found")
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

type Resource string

const (
	ResourceRoom   Resource = "room"
	ResourceDoctor Resource = "doctor"
)

// ConflictError is returned when the requested interval overlaps an existing
// appointment for the same room or doctor. It unwraps to ErrRoomConflict or
// ErrDoctorConflict.
type ConflictError struct {
	Resource   Resource
	ResourceID uuid.UUID
	Existing   Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: overlaps appointment %s [%s, %s)",
		e.Unwrap(), e.Existing.ID,
		e.Existing.StartAt.UTC().Format(time.RFC3339), e.Existing.EndAt.UTC().Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error {
	if e.Resource == ResourceDoctor {
		return ErrDoctorConflict
	}
	return ErrRoomConflict
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrRoomConflict) || errors.Is(err, ErrDoctorConflict)
}

// IsReferenceError reports whether err names an id that does not exist for the tenant.
func IsReferenceError(err error) bool {
	for _, target := range []error{
		ErrOrganizationNotFound,
		ErrDoctorNotFound,
		ErrRoomNotFound,
		ErrServiceNotFound,
		ErrPatientNotFound,
		ErrDeviceNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
