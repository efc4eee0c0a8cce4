package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medportal/client"
	"medportal/client/session"
	"medportal/client/swr"
	"medportal/internal/api"
	"medportal/internal/config"
	"medportal/internal/metrics"
	"medportal/internal/repository"
	"medportal/internal/service"
	v1 "medportal/pkg/api/v1"
	"medportal/pkg/constraints"

	"github.com/gin-gonic/gin"
)

type refreshCounter struct {
	metrics.ClientObserver
	ok, failed atomic.Int32
}

func (r *refreshCounter) RecordRefresh(success bool) {
	if success {
		r.ok.Add(1)
	} else {
		r.failed.Add(1)
	}
}

func newDevServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	practice := service.NewPracticeService()
	if err := practice.Seed(context.Background(), service.DefaultSeed()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	auth := service.NewAuthService(repository.NewMemoryKVStore(), practice, service.AuthConfig{
		SigningKey:      []byte("integration"),
		Issuer:          "medportal-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	srv := httptest.NewServer(api.RegisterRoutes(
		api.NewPracticeHandler(practice),
		api.NewAuthHandler(auth, practice),
		auth,
		config.CORSConfig{},
	))
	t.Cleanup(srv.Close)
	return srv
}

func newDevClient(t *testing.T, srv *httptest.Server) (*client.Client, *session.Store, *refreshCounter) {
	t.Helper()
	counter := &refreshCounter{ClientObserver: metrics.Nop()}
	store := session.NewStore(nil)
	c, err := client.New(srv.URL, store, client.WithObserver(counter))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, store, counter
}

// The dev server rotates refresh tokens, so a second concurrent refresh
// would be rejected and log the user out.
func TestRefreshStormAgainstRotatingServer(t *testing.T) {
	srv := newDevServer(t)
	c, store, counter := newDevClient(t, srv)
	ctx := context.Background()

	tokens, err := c.Login(ctx, "medecin@cabinet.local", "medecin1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	stale := *tokens
	stale.AccessToken = "stale"
	if err := store.Set(ctx, stale); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ListAppointments(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("call failed: %v", err)
	}

	if got := counter.failed.Load(); got != 0 {
		t.Errorf("%d refreshes failed", got)
	}
	if got := counter.ok.Load(); got < 1 {
		t.Errorf("no refresh recorded")
	}
	current, _ := store.Get(ctx)
	if current == nil || current.AccessToken == "stale" || current.Email != "medecin@cabinet.local" {
		t.Errorf("session after storm: %+v", current)
	}
}

func TestPracticeEndpoints(t *testing.T) {
	srv := newDevServer(t)
	ctx := context.Background()

	doctorClient, _, _ := newDevClient(t, srv)
	if _, err := doctorClient.Login(ctx, "medecin@cabinet.local", "medecin1234"); err != nil {
		t.Fatalf("doctor login: %v", err)
	}
	adminClient, _, _ := newDevClient(t, srv)
	if _, err := adminClient.Login(ctx, "admin@cabinet.local", "admin1234"); err != nil {
		t.Fatalf("admin login: %v", err)
	}

	if status, err := doctorClient.Health(ctx); err != nil || status != "ok" {
		t.Fatalf("Health = %q, %v", status, err)
	}

	doctor, err := doctorClient.Me(ctx)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	patients, err := adminClient.ListUsers(ctx, constraints.RolePatient)
	if err != nil || len(patients) != 1 {
		t.Fatalf("ListUsers = %v, %v", patients, err)
	}

	_, err = doctorClient.ListUsers(ctx, "")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Errorf("doctor listing users: %v", err)
	}

	start := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	if _, err := doctorClient.CreateAvailability(ctx, v1.CreateAvailabilityRequest{Start: start, End: start.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("CreateAvailability: %v", err)
	}

	anonymous, _, _ := newDevClient(t, srv)
	avs, err := anonymous.ListAvailabilities(ctx, doctor.ID)
	if err != nil || len(avs) != 1 {
		t.Fatalf("public availabilities = %v, %v", avs, err)
	}
	appt, err := anonymous.BookAppointment(ctx, v1.BookAppointmentRequest{
		DoctorID: doctor.ID, PatientID: patients[0].ID, Start: start, End: start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}

	_, err = anonymous.BookAppointment(ctx, v1.BookAppointmentRequest{
		DoctorID: doctor.ID, PatientID: patients[0].ID, Start: start, End: start.Add(30 * time.Minute),
	})
	if !errors.As(err, &apiErr) || apiErr.Status != 409 || apiErr.Details["debut"] == "" {
		t.Errorf("double booking: %v", err)
	}

	p, err := doctorClient.CreatePrescription(ctx, v1.CreatePrescriptionRequest{AppointmentID: appt.ID, Content: "Ibuprofène 400mg"})
	if err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}
	doc, err := doctorClient.PrescriptionDocument(ctx, p.ID)
	if err != nil || len(doc) == 0 {
		t.Fatalf("PrescriptionDocument: %d bytes, %v", len(doc), err)
	}

	stats, err := adminClient.Stats(ctx)
	if err != nil || stats.Appointments != 1 || stats.Prescriptions != 1 {
		t.Errorf("Stats = %+v, %v", stats, err)
	}

	if err := doctorClient.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := doctorClient.Me(ctx); !errors.Is(err, client.ErrAuthRequired) {
		t.Errorf("Me after logout: %v", err)
	}
}

func TestCacheOverClient(t *testing.T) {
	srv := newDevServer(t)
	ctx := context.Background()
	c, _, _ := newDevClient(t, srv)
	if _, err := c.Login(ctx, "patient@cabinet.local", "patient1234"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	cache := swr.NewCache()
	defer cache.Close()
	q := swr.Use(cache, client.KeyAppointments, c.ListAppointments, swr.WithRevalidateOnFocus(false))
	defer q.Close()

	if err := q.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	appts, ok := q.Data()
	if !ok || len(appts) != 0 {
		t.Errorf("Data = %v (ok=%v)", appts, ok)
	}

	// Optimistic local update without a round trip.
	q.Mutate(append(appts, v1.Appointment{ID: "local", Status: constraints.StatusScheduled}))
	if appts, _ := q.Data(); len(appts) != 1 || appts[0].ID != "local" {
		t.Errorf("mutated data = %v", appts)
	}
}
