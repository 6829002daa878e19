package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduler/internal/auth"
	"github.com/clinicore/clinic-scheduler/internal/schedule"
)

type testEnv struct {
	server         *httptest.Server
	authority      *auth.TokenAuthority
	store          *schedule.MemStore
	practitionerID uuid.UUID
	patientID      uuid.UUID
	otherPatientID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := schedule.NewMemStore()
	authority := auth.NewTokenAuthority([]byte("test-secret"), 15*time.Minute)
	svc := schedule.NewService(store, schedule.NewMutexLocker(), auth.NewGuard(), zap.NewNop())

	env := &testEnv{
		authority:      authority,
		store:          store,
		practitionerID: uuid.New(),
		patientID:      uuid.New(),
		otherPatientID: uuid.New(),
	}

	store.PutPractitioner(schedule.Practitioner{
		ID:              env.practitionerID,
		Name:            "Dr. Reyes",
		WorkdayStartMin: 9 * 60,
		WorkdayEndMin:   17 * 60,
	})
	store.PutPatient(schedule.Patient{ID: env.patientID, Name: "Ana"})
	store.PutPatient(schedule.Patient{ID: env.otherPatientID, Name: "Ben"})

	router := NewRouter(RouterConfig{
		Service:   svc,
		Authority: authority,
		Logger:    zap.NewNop(),
		Env:       "test",
		Version:   "test",
	})

	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) token(t *testing.T, subject uuid.UUID, role auth.Role) string {
	t.Helper()
	token, err := e.authority.Issue(subject, role, time.Now())
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeAppointment(t *testing.T, resp *http.Response) AppointmentResponse {
	t.Helper()
	defer resp.Body.Close()
	var out AppointmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// slot times land on a fixed future day inside working hours.
func bookingBody(practitionerID, patientID uuid.UUID, hhmm string, minutes int) map[string]any {
	return map[string]any{
		"practitioner_id":  practitionerID.String(),
		"patient_id":       patientID.String(),
		"start":            fmt.Sprintf("2030-06-03T%s:00Z", hhmm),
		"duration_minutes": minutes,
	}
}

// TestBookingFlow walks the clinic scenario: book, conflicting book,
// adjacent book, cancel, rebook into the freed slot.
func TestBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	anaToken := env.token(t, env.patientID, auth.RolePatient)
	benToken := env.token(t, env.otherPatientID, auth.RolePatient)

	// Ana books 10:00-10:30.
	resp := env.do(t, "POST", "/appointments", anaToken,
		bookingBody(env.practitionerID, env.patientID, "10:00", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeAppointment(t, resp)
	assert.Equal(t, "scheduled", first.Status)

	// Ben collides with 10:15-10:45.
	resp = env.do(t, "POST", "/appointments", benToken,
		bookingBody(env.practitionerID, env.otherPatientID, "10:15", 30))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Ben books the adjacent 10:30-11:00.
	resp = env.do(t, "POST", "/appointments", benToken,
		bookingBody(env.practitionerID, env.otherPatientID, "10:30", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Ana cancels her appointment.
	resp = env.do(t, "POST", "/appointments/"+first.ID.String()+"/cancel", anaToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeAppointment(t, resp)
	assert.Equal(t, "cancelled", cancelled.Status)

	// Ben rebooks the freed 10:00-10:30.
	resp = env.do(t, "POST", "/appointments", benToken,
		bookingBody(env.practitionerID, env.otherPatientID, "10:00", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestBookingStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	anaToken := env.token(t, env.patientID, auth.RolePatient)

	t.Run("missing credential", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments", "",
			bookingBody(env.practitionerID, env.patientID, "10:00", 30))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage credential", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments", "not.a.token",
			bookingBody(env.practitionerID, env.patientID, "10:00", 30))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired credential", func(t *testing.T) {
		expired, err := env.authority.Issue(env.patientID, auth.RolePatient, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		resp := env.do(t, "POST", "/appointments", expired,
			bookingBody(env.practitionerID, env.patientID, "10:00", 30))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("booking for another patient is forbidden", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments", anaToken,
			bookingBody(env.practitionerID, env.otherPatientID, "11:00", 30))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unparseable body", func(t *testing.T) {
		req, err := http.NewRequest("POST", env.server.URL+"/appointments", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+anaToken)
		resp, err := env.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments", anaToken,
			bookingBody(env.practitionerID, env.patientID, "11:00", 0))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("outside working hours", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments", anaToken,
			bookingBody(env.practitionerID, env.patientID, "07:00", 30))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown practitioner", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments", anaToken,
			bookingBody(uuid.New(), env.patientID, "11:00", 30))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestTransitionStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	anaToken := env.token(t, env.patientID, auth.RolePatient)
	benToken := env.token(t, env.otherPatientID, auth.RolePatient)
	doctorToken := env.token(t, env.practitionerID, auth.RoleDoctor)

	resp := env.do(t, "POST", "/appointments", anaToken,
		bookingBody(env.practitionerID, env.patientID, "10:00", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decodeAppointment(t, resp)

	t.Run("unrelated patient cannot cancel", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments/"+appt.ID.String()+"/cancel", benToken, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("completing a future appointment conflicts", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments/"+appt.ID.String()+"/complete", doctorToken, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown appointment", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments/"+uuid.NewString()+"/cancel", anaToken, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cancel twice conflicts", func(t *testing.T) {
		resp := env.do(t, "POST", "/appointments/"+appt.ID.String()+"/cancel", anaToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, "POST", "/appointments/"+appt.ID.String()+"/cancel", anaToken, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	anaToken := env.token(t, env.patientID, auth.RolePatient)
	benToken := env.token(t, env.otherPatientID, auth.RolePatient)
	doctorToken := env.token(t, env.practitionerID, auth.RoleDoctor)

	resp := env.do(t, "POST", "/appointments", anaToken,
		bookingBody(env.practitionerID, env.patientID, "10:00", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decodeAppointment(t, resp)

	t.Run("owner gets appointment", func(t *testing.T) {
		resp := env.do(t, "GET", "/appointments/"+appt.ID.String(), anaToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeAppointment(t, resp)
		assert.Equal(t, appt.ID, got.ID)
	})

	t.Run("unrelated patient denied", func(t *testing.T) {
		resp := env.do(t, "GET", "/appointments/"+appt.ID.String(), benToken, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("doctor lists own schedule", func(t *testing.T) {
		resp := env.do(t, "GET", "/appointments?practitioner_id="+env.practitionerID.String(), doctorToken, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var appts []AppointmentResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&appts))
		assert.Len(t, appts, 1)
	})

	t.Run("list without filter is a bad request", func(t *testing.T) {
		resp := env.do(t, "GET", "/appointments", anaToken, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestIssueTokenEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "POST", "/auth/token", "", map[string]any{
		"subject": env.patientID.String(),
		"role":    "patient",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var out IssueTokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)

	// The minted credential actually works against the booking endpoint.
	bookResp := env.do(t, "POST", "/appointments", out.Token,
		bookingBody(env.practitionerID, env.patientID, "10:00", 30))
	defer bookResp.Body.Close()
	assert.Equal(t, http.StatusCreated, bookResp.StatusCode)

	t.Run("bad role rejected", func(t *testing.T) {
		resp := env.do(t, "POST", "/auth/token", "", map[string]any{
			"subject": uuid.NewString(),
			"role":    "superuser",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// faultyStore fails list queries the way a lost database connection would.
type faultyStore struct {
	*schedule.MemStore
}

func (s *faultyStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]schedule.Appointment, error) {
	return nil, errors.New("connect: connection refused")
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	store := schedule.NewMemStore()
	patientID := uuid.New()
	store.PutPatient(schedule.Patient{ID: patientID, Name: "Ana"})

	authority := auth.NewTokenAuthority([]byte("test-secret"), 15*time.Minute)
	svc := schedule.NewService(&faultyStore{MemStore: store}, schedule.NewMutexLocker(), auth.NewGuard(), zap.NewNop())

	server := httptest.NewServer(NewRouter(RouterConfig{
		Service:   svc,
		Authority: authority,
		Logger:    zap.NewNop(),
		Env:       "test",
		Version:   "test",
	}))
	defer server.Close()

	token, err := authority.Issue(patientID, auth.RolePatient, time.Now())
	require.NoError(t, err)

	req, err := http.NewRequest("GET", server.URL+"/appointments?patient_id="+patientID.String(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "connection refused")

	var out ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "internal_error", out.Error)
	assert.Equal(t, "internal error", out.Details)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, "GET", "/health/live", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/health/ready", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
