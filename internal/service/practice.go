package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "medportal/pkg/api/v1"
	"medportal/pkg/constraints"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrEmailTaken          = errors.New("email already registered")
	ErrSlotTaken           = errors.New("slot already booked")
	ErrOutsideAvailability = errors.New("slot outside doctor availability")
	ErrInvalidState        = errors.New("invalid state transition")
)

// ValidationError maps field names to messages.
type ValidationError map[string]string

func (e ValidationError) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

type userRecord struct {
	v1.User
	passwordHash []byte
}

// SeedUser is an account created at startup.
type SeedUser struct {
	v1.User
	Password string
}

// PracticeService keeps the practice data of the dev API in memory.
type PracticeService struct {
	mu             sync.RWMutex
	users          map[string]*userRecord
	appointments   map[string]*v1.Appointment
	availabilities map[string]*v1.Availability
	prescriptions  map[string]*v1.Prescription

	now func() time.Time
}

func NewPracticeService() *PracticeService {
	return &PracticeService{
		users:          make(map[string]*userRecord),
		appointments:   make(map[string]*v1.Appointment),
		availabilities: make(map[string]*v1.Availability),
		prescriptions:  make(map[string]*v1.Prescription),
		now:            time.Now,
	}
}

func (s *PracticeService) Seed(ctx context.Context, users []SeedUser) error {
	for _, u := range users {
		if _, err := s.createUser(u.User, u.Password); err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
	}
	return nil
}

// DefaultSeed is the account set the dev server starts with.
func DefaultSeed() []SeedUser {
	return []SeedUser{
		{User: v1.User{Email: "admin@cabinet.local", FirstName: "Alice", LastName: "Martin", Role: constraints.RoleAdmin}, Password: "admin1234"},
		{User: v1.User{Email: "medecin@cabinet.local", FirstName: "Gregory", LastName: "House", Role: constraints.RoleDoctor, Specialty: "Diagnostic"}, Password: "medecin1234"},
		{User: v1.User{Email: "patient@cabinet.local", FirstName: "Jean", LastName: "Dupont", Role: constraints.RolePatient}, Password: "patient1234"},
	}
}

func (s *PracticeService) Authenticate(ctx context.Context, email, password string) (*v1.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
				return nil, ErrInvalidCredentials
			}
			user := u.User
			return &user, nil
		}
	}
	return nil, ErrInvalidCredentials
}

func (s *PracticeService) GetUser(ctx context.Context, id string) (*v1.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	user := u.User
	return &user, nil
}

func (s *PracticeService) ListUsers(ctx context.Context, role string) []v1.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.User, 0, len(s.users))
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, u.User)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (s *PracticeService) CreateUser(ctx context.Context, req v1.CreateUserRequest) (*v1.User, error) {
	if req.Role == constraints.RoleDoctor && strings.TrimSpace(req.Specialty) == "" {
		return nil, ValidationError{"specialite": "la spécialité est obligatoire pour un médecin"}
	}
	return s.createUser(v1.User{
		Email:     strings.TrimSpace(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      req.Role,
		Specialty: strings.TrimSpace(req.Specialty),
	}, req.Password)
}

func (s *PracticeService) createUser(user v1.User, password string) (*v1.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, ErrEmailTaken
		}
	}
	user.ID = uuid.New().String()
	s.users[user.ID] = &userRecord{User: user, passwordHash: hash}
	return &user, nil
}

func (s *PracticeService) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// ListAppointments is scoped by role: admins see everything, doctors and
// patients see their own appointments.
func (s *PracticeService) ListAppointments(ctx context.Context, caller *Caller) []v1.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.Appointment, 0)
	for _, a := range s.appointments {
		if caller.Role == constraints.RoleAdmin || a.DoctorID == caller.UserID || a.PatientID == caller.UserID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *PracticeService) BookAppointment(ctx context.Context, req v1.BookAppointmentRequest) (*v1.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := ValidationError{}
	if d, ok := s.users[req.DoctorID]; !ok || d.Role != constraints.RoleDoctor {
		fields["medecinId"] = "médecin inconnu"
	}
	if p, ok := s.users[req.PatientID]; !ok || p.Role != constraints.RolePatient {
		fields["patientId"] = "patient inconnu"
	}
	if !req.Start.After(s.now()) {
		fields["debut"] = "le rendez-vous doit être dans le futur"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	covered := false
	for _, av := range s.availabilities {
		if av.DoctorID == req.DoctorID && !req.Start.Before(av.Start) && !req.End.After(av.End) {
			covered = true
			break
		}
	}
	if !covered {
		return nil, ErrOutsideAvailability
	}
	for _, a := range s.appointments {
		if a.DoctorID == req.DoctorID && a.Status == constraints.StatusScheduled &&
			req.Start.Before(a.End) && a.Start.Before(req.End) {
			return nil, ErrSlotTaken
		}
	}

	appt := &v1.Appointment{
		ID:        uuid.New().String(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Start:     req.Start.UTC(),
		End:       req.End.UTC(),
		Status:    constraints.StatusScheduled,
		Reason:    strings.TrimSpace(req.Reason),
	}
	s.appointments[appt.ID] = appt
	out := *appt
	return &out, nil
}

func (s *PracticeService) CancelAppointment(ctx context.Context, caller *Caller, id string) (*v1.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if caller.Role != constraints.RoleAdmin && a.DoctorID != caller.UserID && a.PatientID != caller.UserID {
		return nil, ErrForbidden
	}
	if a.Status != constraints.StatusScheduled {
		return nil, ErrInvalidState
	}
	a.Status = constraints.StatusCancelled
	out := *a
	return &out, nil
}

// CompletePast marks scheduled appointments that ended before now as
// completed and returns how many changed.
func (s *PracticeService) CompletePast(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.appointments {
		if a.Status == constraints.StatusScheduled && a.End.Before(now) {
			a.Status = constraints.StatusCompleted
			n++
		}
	}
	return n
}

func (s *PracticeService) ListAvailabilities(ctx context.Context, doctorID string) []v1.Availability {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.Availability, 0)
	for _, av := range s.availabilities {
		if doctorID == "" || av.DoctorID == doctorID {
			out = append(out, *av)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *PracticeService) CreateAvailability(ctx context.Context, caller *Caller, req v1.CreateAvailabilityRequest) (*v1.Availability, error) {
	if caller.Role != constraints.RoleDoctor {
		return nil, ErrForbidden
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, av := range s.availabilities {
		if av.DoctorID == caller.UserID && req.Start.Before(av.End) && av.Start.Before(req.End) {
			return nil, ValidationError{"debut": "chevauche une disponibilité existante"}
		}
	}
	av := &v1.Availability{
		ID:       uuid.New().String(),
		DoctorID: caller.UserID,
		Start:    req.Start.UTC(),
		End:      req.End.UTC(),
	}
	s.availabilities[av.ID] = av
	out := *av
	return &out, nil
}

func (s *PracticeService) ListPrescriptions(ctx context.Context, caller *Caller) []v1.Prescription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]v1.Prescription, 0)
	for _, p := range s.prescriptions {
		if caller.Role == constraints.RoleAdmin || p.DoctorID == caller.UserID || p.PatientID == caller.UserID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *PracticeService) CreatePrescription(ctx context.Context, caller *Caller, req v1.CreatePrescriptionRequest) (*v1.Prescription, error) {
	if caller.Role != constraints.RoleDoctor {
		return nil, ErrForbidden
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[req.AppointmentID]
	if !ok {
		return nil, ValidationError{"rendezVousId": "rendez-vous inconnu"}
	}
	if a.DoctorID != caller.UserID {
		return nil, ErrForbidden
	}
	p := &v1.Prescription{
		ID:            uuid.New().String(),
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Content:       strings.TrimSpace(req.Content),
		CreatedAt:     s.now().UTC(),
	}
	s.prescriptions[p.ID] = p
	out := *p
	return &out, nil
}

// PrescriptionDocument renders the printable prescription.
func (s *PracticeService) PrescriptionDocument(ctx context.Context, caller *Caller, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prescriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if caller.Role != constraints.RoleAdmin && p.DoctorID != caller.UserID && p.PatientID != caller.UserID {
		return nil, ErrForbidden
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ORDONNANCE %s\n", p.ID)
	fmt.Fprintf(&b, "Date: %s\n", p.CreatedAt.Format("02/01/2006"))
	if d, ok := s.users[p.DoctorID]; ok {
		fmt.Fprintf(&b, "Médecin: Dr %s %s (%s)\n", d.FirstName, d.LastName, d.Specialty)
	}
	if pt, ok := s.users[p.PatientID]; ok {
		fmt.Fprintf(&b, "Patient: %s %s\n", pt.FirstName, pt.LastName)
	}
	b.WriteString("\n")
	b.WriteString(p.Content)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func (s *PracticeService) Stats(ctx context.Context) v1.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	st := v1.Stats{
		Users:         len(s.users),
		Appointments:  len(s.appointments),
		Prescriptions: len(s.prescriptions),
	}
	for _, u := range s.users {
		switch u.Role {
		case constraints.RoleDoctor:
			st.Doctors++
		case constraints.RolePatient:
			st.Patients++
		}
	}
	for _, a := range s.appointments {
		if a.Status == constraints.StatusScheduled && a.Start.After(now) {
			st.UpcomingAppointments++
		}
	}
	return st
}

// Roles accepted by the API.
var Roles = []string{constraints.RoleAdmin, constraints.RoleDoctor, constraints.RolePatient}

func ValidRole(role string) bool {
	return slices.Contains(Roles, role)
}
