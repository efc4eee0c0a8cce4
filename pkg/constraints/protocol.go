package constraints

// Role is carried as an opaque string alongside the session tokens.
type Role = string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "MEDECIN"
	RolePatient Role = "PATIENT"
)

type AppointmentStatus = string

const (
	StatusScheduled AppointmentStatus = "PLANIFIE"
	StatusCancelled AppointmentStatus = "ANNULE"
	StatusCompleted AppointmentStatus = "TERMINE"
)

// ResponseType selects how a successful response body is decoded.
type ResponseType string

const (
	ResponseJSON ResponseType = "json"
	ResponseBlob ResponseType = "blob"
	ResponseText ResponseType = "text"
)
