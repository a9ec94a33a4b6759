package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking/internal/interval"
)

type Organization struct {
	ID       uuid.UUID
	Name     string
	Slug     string
	Timezone string // IANA name
}

// Appointment occupies a doctor and a room for [StartAt, EndAt).
type Appointment struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	DoctorID       uuid.UUID
	RoomID         uuid.UUID
	ServiceID      uuid.UUID
	PatientID      uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	DeviceIDs      []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) Interval() interval.Interval {
	return interval.New(a.StartAt, a.EndAt)
}

type CreateAppointmentInput struct {
	OrganizationID uuid.UUID
	DoctorID       uuid.UUID
	ServiceID      uuid.UUID
	RoomID         uuid.UUID
	PatientID      uuid.UUID
	DeviceIDs      []uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
}

func (in CreateAppointmentInput) Interval() interval.Interval {
	return interval.New(in.StartAt, in.EndAt)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DirectoryKind names a tenant-owned lookup table.
type DirectoryKind string

const (
	DirectoryDoctors  DirectoryKind = "doctors"
	DirectoryRooms    DirectoryKind = "rooms"
	DirectoryDevices  DirectoryKind = "devices"
	DirectoryPatients DirectoryKind = "patients"
	DirectoryServices DirectoryKind = "services"
)

func (k DirectoryKind) Valid() bool {
	switch k {
	case DirectoryDoctors, DirectoryRooms, DirectoryDevices, DirectoryPatients, DirectoryServices:
		return true
	}
	return false
}

type DirectoryEntry struct {
	ID   uuid.UUID
	Name string
}
