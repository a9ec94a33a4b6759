package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	ServiceID string    `json:"service_id" validate:"required,uuid"`
	RoomID    string    `json:"room_id" validate:"required,uuid"`
	PatientID string    `json:"patient_id" validate:"required,uuid"`
	DeviceIDs []string  `json:"device_ids" validate:"required,min=1,dive,uuid"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	EndAt     time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
}

// toInput converts a validated request. Every id has already passed the uuid
// tag so parsing cannot fail.
func (r CreateAppointmentRequest) toInput(orgID uuid.UUID) appointment.CreateAppointmentInput {
	devices := make([]uuid.UUID, len(r.DeviceIDs))
	for i, d := range r.DeviceIDs {
		devices[i] = uuid.MustParse(d)
	}
	return appointment.CreateAppointmentInput{
		OrganizationID: orgID,
		DoctorID:       uuid.MustParse(r.DoctorID),
		ServiceID:      uuid.MustParse(r.ServiceID),
		RoomID:         uuid.MustParse(r.RoomID),
		PatientID:      uuid.MustParse(r.PatientID),
		DeviceIDs:      devices,
		StartAt:        r.StartAt,
		EndAt:          r.EndAt,
	}
}

type AppointmentResponse struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	DoctorID       uuid.UUID   `json:"doctor_id"`
	ServiceID      uuid.UUID   `json:"service_id"`
	RoomID         uuid.UUID   `json:"room_id"`
	PatientID      uuid.UUID   `json:"patient_id"`
	DeviceIDs      []uuid.UUID `json:"device_ids,omitempty"`
	StartAt        time.Time   `json:"start_at"`
	EndAt          time.Time   `json:"end_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		DoctorID:       a.DoctorID,
		ServiceID:      a.ServiceID,
		RoomID:         a.RoomID,
		PatientID:      a.PatientID,
		DeviceIDs:      a.DeviceIDs,
		StartAt:        a.StartAt.UTC(),
		EndAt:          a.EndAt.UTC(),
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type DirectoryEntryResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type DirectoryResponse struct {
	Kind    string                   `json:"kind"`
	Entries []DirectoryEntryResponse `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// set on conflicts
	Resource      string     `json:"resource,omitempty"`
	ConflictingID *uuid.UUID `json:"conflicting_appointment_id,omitempty"`
}
