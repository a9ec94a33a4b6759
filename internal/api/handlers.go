package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking/internal/appointment"
	"github.com/hackgods/appointment-booking/internal/retry"
)

// AppointmentService is the part of appointment.Service the HTTP layer uses.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, in appointment.CreateAppointmentInput) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, orgID uuid.UUID, roomID *uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
	ListDirectory(ctx context.Context, orgID uuid.UUID, kind appointment.DirectoryKind) ([]appointment.DirectoryEntry, error)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, e.Field()+" is required")
		case "uuid":
			msgs = append(msgs, e.Field()+" must be a valid UUID")
		case "min":
			msgs = append(msgs, e.Field()+" must have at least "+e.Param()+" item")
		case "gtfield":
			msgs = append(msgs, e.Field()+" must be after "+snakeCase(e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}

// snakeCase turns a struct field name such as StartAt into its json name.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func createAppointmentHandler(svc AppointmentService, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := GetOrganizationID(r.Context())

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", formatValidationError(err))
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), req.toInput(orgID))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := GetOrganizationID(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), orgID, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := GetOrganizationID(r.Context())
		q := r.URL.Query()

		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
			return
		}

		var roomID *uuid.UUID
		if raw := q.Get("room_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
				return
			}
			roomID = &id
		}

		appts, err := svc.ListAppointments(r.Context(), orgID, roomID, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := ListAppointmentsResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func directoryHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := GetOrganizationID(r.Context())
		kind := appointment.DirectoryKind(chi.URLParam(r, "kind"))
		if !kind.Valid() {
			writeError(w, http.StatusNotFound, "unknown_directory", fmt.Sprintf("no directory named %q", kind))
			return
		}

		entries, err := svc.ListDirectory(r.Context(), orgID, kind)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := DirectoryResponse{Kind: string(kind), Entries: make([]DirectoryEntryResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, DirectoryEntryResponse{ID: e.ID, Name: e.Name})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var conflict *appointment.ConflictError
	switch {
	case errors.As(err, &conflict):
		existing := conflict.Existing.ID
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:         string(conflict.Resource) + "_conflict",
			Details:       err.Error(),
			Resource:      string(conflict.Resource),
			ConflictingID: &existing,
		})
	case errors.Is(err, appointment.ErrRoomConflict):
		writeError(w, http.StatusConflict, "room_conflict", err.Error())
	case errors.Is(err, appointment.ErrDoctorConflict):
		writeError(w, http.StatusConflict, "doctor_conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case appointment.IsReferenceError(err):
		writeError(w, http.StatusUnprocessableEntity, "unknown_reference", err.Error())
	case retry.IsExhausted(err):
		writeError(w, http.StatusServiceUnavailable, "booking_contention", "too much contention on this slot, please retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
