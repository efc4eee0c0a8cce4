package v1

import "time"

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"prenom"`
	LastName  string `json:"nom"`
	Role      string `json:"role"`
	Specialty string `json:"specialite,omitempty"`
}

type CreateUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"prenom" binding:"required"`
	LastName  string `json:"nom" binding:"required"`
	Role      string `json:"role" binding:"required,oneof=ADMIN MEDECIN PATIENT"`
	Specialty string `json:"specialite"`
}

type Appointment struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"medecinId"`
	PatientID string    `json:"patientId"`
	Start     time.Time `json:"debut"`
	End       time.Time `json:"fin"`
	Status    string    `json:"statut"`
	Reason    string    `json:"motif,omitempty"`
}

type BookAppointmentRequest struct {
	DoctorID  string    `json:"medecinId" binding:"required"`
	PatientID string    `json:"patientId" binding:"required"`
	Start     time.Time `json:"debut" binding:"required"`
	End       time.Time `json:"fin" binding:"required,gtfield=Start"`
	Reason    string    `json:"motif"`
}

type Availability struct {
	ID       string    `json:"id"`
	DoctorID string    `json:"medecinId"`
	Start    time.Time `json:"debut"`
	End      time.Time `json:"fin"`
}

type CreateAvailabilityRequest struct {
	Start time.Time `json:"debut" binding:"required"`
	End   time.Time `json:"fin" binding:"required,gtfield=Start"`
}

type Prescription struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"rendezVousId"`
	DoctorID      string    `json:"medecinId"`
	PatientID     string    `json:"patientId"`
	Content       string    `json:"contenu"`
	CreatedAt     time.Time `json:"creeLe"`
}

type CreatePrescriptionRequest struct {
	AppointmentID string `json:"rendezVousId" binding:"required"`
	Content       string `json:"contenu" binding:"required"`
}

type Stats struct {
	Users                int `json:"utilisateurs"`
	Doctors              int `json:"medecins"`
	Patients             int `json:"patients"`
	Appointments         int `json:"rendezVous"`
	UpcomingAppointments int `json:"rendezVousAVenir"`
	Prescriptions        int `json:"ordonnances"`
}
