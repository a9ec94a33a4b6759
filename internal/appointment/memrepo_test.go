package appointment

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/appointment-booking/internal/db"
	"github.com/hackgods/appointment-booking/internal/interval"
)

// memStore is an in-memory Repository that behaves like Postgres SERIALIZABLE
// for the booking workload: each transaction reads a snapshot taken at begin,
// and commit fails with SQLSTATE 40001 if another transaction committed an
// appointment for a room or doctor this one read in the meantime.
type memStore struct {
	mu  sync.Mutex
	seq int64

	orgs   map[uuid.UUID]*Organization
	owners map[uuid.UUID]ownedRef // doctor/room/service/patient/device -> org

	appts   []memAppt
	devices map[uuid.UUID][]uuid.UUID
	events  []EventLog

	failCommits int // next N commits fail with a serialization error

	// barrier holds the first barrierN transactions right before commit so
	// they all read the same snapshot.
	barrier      sync.WaitGroup
	barrierN     int32
	barrierCalls int32

	txCount int32
}

type refKind int

const (
	refDoctor refKind = iota
	refRoom
	refService
	refPatient
	refDevice
)

type ownedRef struct {
	org  uuid.UUID
	kind refKind
}

type memAppt struct {
	Appointment
	seq int64
}

func newMemStore() *memStore {
	return &memStore{
		orgs:    make(map[uuid.UUID]*Organization),
		owners:  make(map[uuid.UUID]ownedRef),
		devices: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *memStore) holdCommits(n int) {
	m.barrierN = int32(n)
	m.barrier.Add(n)
}

func (m *memStore) addOrg(tz string) uuid.UUID {
	id := uuid.New()
	m.orgs[id] = &Organization{ID: id, Name: "Clinic " + id.String()[:8], Slug: id.String(), Timezone: tz}
	return id
}

func (m *memStore) add(org uuid.UUID, kind refKind) uuid.UUID {
	id := uuid.New()
	m.owners[id] = ownedRef{org: org, kind: kind}
	return id
}

// seedAppointment commits a row directly, bypassing all checks.
func (m *memStore) seedAppointment(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.seq++
	m.appts = append(m.appts, memAppt{Appointment: a, seq: m.seq})
}

func (m *memStore) count(match func(Appointment) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appts {
		if match(a.Appointment) {
			n++
		}
	}
	return n
}

func (m *memStore) deviceRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.devices {
		n += len(d)
	}
	return n
}

func (m *memStore) all() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Appointment, len(m.appts))
	for i, a := range m.appts {
		out[i] = a.Appointment
	}
	return out
}

type readKey struct {
	org uuid.UUID
	id  uuid.UUID
}

type memTx struct {
	store    *memStore
	snapshot int64

	readRooms   map[readKey]bool
	readDoctors map[readKey]bool

	pending []Appointment
	devices map[uuid.UUID][]uuid.UUID
	events  []EventLog
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	atomic.AddInt32(&m.txCount, 1)

	m.mu.Lock()
	tx := &memTx{
		store:       m,
		snapshot:    m.seq,
		readRooms:   make(map[readKey]bool),
		readDoctors: make(map[readKey]bool),
		devices:     make(map[uuid.UUID][]uuid.UUID),
	}
	m.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if atomic.AddInt32(&m.barrierCalls, 1) <= m.barrierN {
		m.barrier.Done()
		m.barrier.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCommits > 0 {
		m.failCommits--
		return &pgconn.PgError{Code: db.CodeSerializationFailure, Message: "could not serialize access due to read/write dependencies among transactions"}
	}

	for _, a := range m.appts {
		if a.seq <= tx.snapshot {
			continue
		}
		if tx.readRooms[readKey{a.OrganizationID, a.RoomID}] || tx.readDoctors[readKey{a.OrganizationID, a.DoctorID}] {
			return &pgconn.PgError{Code: db.CodeSerializationFailure, Message: "could not serialize access due to read/write dependencies among transactions"}
		}
	}

	for _, a := range tx.pending {
		m.seq++
		m.appts = append(m.appts, memAppt{Appointment: a, seq: m.seq})
	}
	for id, d := range tx.devices {
		m.devices[id] = d
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (t *memTx) GetOrganization(_ context.Context, id uuid.UUID) (*Organization, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	o, ok := t.store.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) ValidateReferences(_ context.Context, in CreateAppointmentInput) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	owned := func(id uuid.UUID, kind refKind) bool {
		ref, ok := t.store.owners[id]
		return ok && ref.org == in.OrganizationID && ref.kind == kind
	}
	switch {
	case !owned(in.DoctorID, refDoctor):
		return ErrDoctorNotFound
	case !owned(in.RoomID, refRoom):
		return ErrRoomNotFound
	case !owned(in.ServiceID, refService):
		return ErrServiceNotFound
	case !owned(in.PatientID, refPatient):
		return ErrPatientNotFound
	}
	for _, d := range in.DeviceIDs {
		if !owned(d, refDevice) {
			return ErrDeviceNotFound
		}
	}
	return nil
}

func (t *memTx) list(match func(Appointment) bool, bracket interval.Interval) []Appointment {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var out []Appointment
	for _, a := range t.store.appts {
		if a.seq > t.snapshot {
			continue
		}
		if match(a.Appointment) && interval.Overlaps(a.Interval(), bracket) {
			out = append(out, a.Appointment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (t *memTx) ListRoomAppointments(_ context.Context, orgID, roomID uuid.UUID, bracket interval.Interval) ([]Appointment, error) {
	t.readRooms[readKey{orgID, roomID}] = true
	return t.list(func(a Appointment) bool {
		return a.OrganizationID == orgID && a.RoomID == roomID
	}, bracket), nil
}

func (t *memTx) ListDoctorAppointments(_ context.Context, orgID, doctorID uuid.UUID, bracket interval.Interval) ([]Appointment, error) {
	t.readDoctors[readKey{orgID, doctorID}] = true
	return t.list(func(a Appointment) bool {
		return a.OrganizationID == orgID && a.DoctorID == doctorID
	}, bracket), nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *Appointment) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	t.pending = append(t.pending, *a)
	return nil
}

func (t *memTx) InsertAppointmentDevices(_ context.Context, appointmentID uuid.UUID, deviceIDs []uuid.UUID) error {
	t.devices[appointmentID] = append([]uuid.UUID(nil), deviceIDs...)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	t.events = append(t.events, ev)
	return nil
}

func (m *memStore) GetAppointment(_ context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.ID == id && a.OrganizationID == orgID {
			cp := a.Appointment
			cp.DeviceIDs = m.devices[id]
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memStore) ListAppointments(_ context.Context, orgID uuid.UUID, roomID *uuid.UUID, from, to time.Time) ([]Appointment, error) {
	window := interval.New(from, to)
	var out []Appointment
	for _, a := range m.all() {
		if a.OrganizationID != orgID || (roomID != nil && a.RoomID != *roomID) {
			continue
		}
		if interval.Overlaps(a.Interval(), window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListAppointmentsInWindow(_ context.Context, from, to time.Time) ([]Appointment, error) {
	window := interval.New(from, to)
	var out []Appointment
	for _, a := range m.all() {
		if interval.Overlaps(a.Interval(), window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListDirectory(_ context.Context, orgID uuid.UUID, kind DirectoryKind) ([]DirectoryEntry, error) {
	want := map[DirectoryKind]refKind{
		DirectoryDoctors:  refDoctor,
		DirectoryRooms:    refRoom,
		DirectoryServices: refService,
		DirectoryPatients: refPatient,
		DirectoryDevices:  refDevice,
	}[kind]

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DirectoryEntry
	for id, ref := range m.owners {
		if ref.org == orgID && ref.kind == want {
			out = append(out, DirectoryEntry{ID: id, Name: id.String()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
