package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/appointment-booking/internal/db"
	"github.com/hackgods/appointment-booking/internal/interval"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, organization_id, doctor_id, room_id, service_id, patient_id, start_at, end_at, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.DoctorID,
		&a.RoomID,
		&a.ServiceID,
		&a.PatientID,
		&a.StartAt,
		&a.EndAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// referenceError maps a foreign key violation raised by an insert to the
// matching not-found error.
func referenceError(err error) error {
	if !db.IsForeignKeyViolation(err) {
		return err
	}
	switch db.ConstraintName(err) {
	case "appointments_organization_id_fkey":
		return fmt.Errorf("%w: %v", ErrOrganizationNotFound, err)
	case "appointments_doctor_id_fkey":
		return fmt.Errorf("%w: %v", ErrDoctorNotFound, err)
	case "appointments_room_id_fkey":
		return fmt.Errorf("%w: %v", ErrRoomNotFound, err)
	case "appointments_service_id_fkey":
		return fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	case "appointments_patient_id_fkey":
		return fmt.Errorf("%w: %v", ErrPatientNotFound, err)
	case "appointment_devices_device_id_fkey":
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	return err
}

// Transactions

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.InTx(ctx, r.pool, db.SerializableTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var o Organization
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, slug, timezone
		FROM organizations
		WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.Slug, &o.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return &o, nil
}

func (t *pgTx) ValidateReferences(ctx context.Context, in CreateAppointmentInput) error {
	var doctorOK, roomOK, serviceOK, patientOK bool
	var devices int

	err := t.tx.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM doctors  WHERE organization_id = $1 AND id = $2),
			EXISTS (SELECT 1 FROM rooms    WHERE organization_id = $1 AND id = $3),
			EXISTS (SELECT 1 FROM services WHERE organization_id = $1 AND id = $4),
			EXISTS (SELECT 1 FROM patients WHERE organization_id = $1 AND id = $5),
			(SELECT count(*) FROM devices WHERE organization_id = $1 AND id = ANY($6::uuid[]))
	`, in.OrganizationID, in.DoctorID, in.RoomID, in.ServiceID, in.PatientID, uuidStrings(in.DeviceIDs),
	).Scan(&doctorOK, &roomOK, &serviceOK, &patientOK, &devices)
	if err != nil {
		return fmt.Errorf("validate references: %w", err)
	}

	switch {
	case !doctorOK:
		return ErrDoctorNotFound
	case !roomOK:
		return ErrRoomNotFound
	case !serviceOK:
		return ErrServiceNotFound
	case !patientOK:
		return ErrPatientNotFound
	case devices != len(in.DeviceIDs):
		return ErrDeviceNotFound
	}
	return nil
}

func (t *pgTx) ListRoomAppointments(ctx context.Context, orgID, roomID uuid.UUID, bracket interval.Interval) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND room_id = $2
		  AND start_at < $4
		  AND end_at > $3
		ORDER BY start_at
	`, orgID, roomID, bracket.Start, bracket.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) ListDoctorAppointments(ctx context.Context, orgID, doctorID uuid.UUID, bracket interval.Interval) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND doctor_id = $2
		  AND start_at < $4
		  AND end_at > $3
		ORDER BY start_at
	`, orgID, doctorID, bracket.Start, bracket.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, organization_id, doctor_id, room_id, service_id, patient_id, start_at, end_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.OrganizationID, a.DoctorID, a.RoomID, a.ServiceID, a.PatientID, a.StartAt, a.EndAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsCheckViolation(err) {
			return invalid("start_at must be before end_at")
		}
		return referenceError(err)
	}
	return nil
}

func (t *pgTx) InsertAppointmentDevices(ctx context.Context, appointmentID uuid.UUID, deviceIDs []uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_devices (appointment_id, device_id)
		SELECT $1, d FROM unnest($2::uuid[]) AS d
	`, appointmentID, uuidStrings(deviceIDs))
	if err != nil {
		return referenceError(err)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Read paths

func (r *PgRepository) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT device_id FROM appointment_devices
		WHERE appointment_id = $1
		ORDER BY device_id
	`, id)
	if err != nil {
		return nil, err
	}
	devices, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("load appointment devices: %w", err)
	}
	a.DeviceIDs = devices

	return a, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, orgID uuid.UUID, roomID *uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND ($2::uuid IS NULL OR room_id = $2)
		  AND start_at < $4
		  AND end_at > $3
		ORDER BY start_at, id
	`, orgID, roomID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsInWindow(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_at < $2
		  AND end_at > $1
		ORDER BY organization_id, start_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

var directoryTables = map[DirectoryKind]string{
	DirectoryDoctors:  "doctors",
	DirectoryRooms:    "rooms",
	DirectoryDevices:  "devices",
	DirectoryPatients: "patients",
	DirectoryServices: "services",
}

func (r *PgRepository) ListDirectory(ctx context.Context, orgID uuid.UUID, kind DirectoryKind) ([]DirectoryEntry, error) {
	table, ok := directoryTables[kind]
	if !ok {
		return nil, invalid("unknown directory %q", kind)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name FROM `+table+`
		WHERE organization_id = $1
		ORDER BY name, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DirectoryEntry
	for rows.Next() {
		var e DirectoryEntry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
