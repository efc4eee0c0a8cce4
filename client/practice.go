package client

import (
	"context"
	"net/http"
	"net/url"

	"medportal/client/session"
	v1 "medportal/pkg/api/v1"
	"medportal/pkg/constraints"
	"medportal/pkg/logger"

	"go.uber.org/zap"
)

// Cache keys shared by every view that displays the same collection.
const (
	KeyMe            = "auth:me"
	KeyUsers         = "users"
	KeyAppointments  = "appointments"
	KeyPrescriptions = "prescriptions"
	KeyStats         = "stats"
)

func KeyAvailabilities(doctorID string) string {
	return "availabilities:" + doctorID
}

// Login opens a session and persists it together with the email.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Tokens, error) {
	pair, err := FetchJSON[v1.TokenPair](ctx, c, Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   v1.LoginRequest{Email: email, Password: password},
		Public: true,
	})
	if err != nil {
		return nil, err
	}
	if pair == nil || pair.AccessToken == "" {
		return nil, ErrMalformedResponse
	}
	tokens := session.Tokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         pair.Role,
		Email:        email,
	}
	if err := c.store.Set(ctx, tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout revokes the session server side when possible and always clears
// the local session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Fetch(ctx, Request{Method: http.MethodPost, Path: logoutPath}, nil)
	if err != nil {
		logger.Debug("server logout failed", zap.Error(err))
	}
	return c.store.Clear(ctx)
}

func (c *Client) Me(ctx context.Context) (*v1.User, error) {
	return FetchJSON[v1.User](ctx, c, Request{Path: "/api/auth/me"})
}

func (c *Client) ListUsers(ctx context.Context, role string) ([]v1.User, error) {
	var q url.Values
	if role != "" {
		q = url.Values{"role": {role}}
	}
	var users []v1.User
	err := c.Fetch(ctx, Request{Path: "/api/users", Query: q}, &users)
	return users, err
}

func (c *Client) CreateUser(ctx context.Context, in v1.CreateUserRequest) (*v1.User, error) {
	return FetchJSON[v1.User](ctx, c, Request{Method: http.MethodPost, Path: "/api/users", Body: in})
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.Fetch(ctx, Request{Method: http.MethodDelete, Path: "/api/users/" + url.PathEscape(id)}, nil)
}

func (c *Client) ListAppointments(ctx context.Context) ([]v1.Appointment, error) {
	var out []v1.Appointment
	err := c.Fetch(ctx, Request{Path: "/api/appointments"}, &out)
	return out, err
}

// BookAppointment is available from the public booking page.
func (c *Client) BookAppointment(ctx context.Context, in v1.BookAppointmentRequest) (*v1.Appointment, error) {
	return FetchJSON[v1.Appointment](ctx, c, Request{
		Method: http.MethodPost,
		Path:   "/api/appointments",
		Body:   in,
		Public: true,
	})
}

func (c *Client) CancelAppointment(ctx context.Context, id string) (*v1.Appointment, error) {
	return FetchJSON[v1.Appointment](ctx, c, Request{
		Method: http.MethodPost,
		Path:   "/api/appointments/" + url.PathEscape(id) + "/cancel",
	})
}

func (c *Client) ListAvailabilities(ctx context.Context, doctorID string) ([]v1.Availability, error) {
	var out []v1.Availability
	err := c.Fetch(ctx, Request{
		Path:   "/api/availabilities",
		Query:  url.Values{"medecinId": {doctorID}},
		Public: true,
	}, &out)
	return out, err
}

func (c *Client) CreateAvailability(ctx context.Context, in v1.CreateAvailabilityRequest) (*v1.Availability, error) {
	return FetchJSON[v1.Availability](ctx, c, Request{Method: http.MethodPost, Path: "/api/availabilities", Body: in})
}

func (c *Client) ListPrescriptions(ctx context.Context) ([]v1.Prescription, error) {
	var out []v1.Prescription
	err := c.Fetch(ctx, Request{Path: "/api/prescriptions"}, &out)
	return out, err
}

func (c *Client) CreatePrescription(ctx context.Context, in v1.CreatePrescriptionRequest) (*v1.Prescription, error) {
	return FetchJSON[v1.Prescription](ctx, c, Request{Method: http.MethodPost, Path: "/api/prescriptions", Body: in})
}

// PrescriptionDocument downloads the printable prescription.
func (c *Client) PrescriptionDocument(ctx context.Context, id string) ([]byte, error) {
	var doc []byte
	err := c.Fetch(ctx, Request{
		Path:         "/api/prescriptions/" + url.PathEscape(id) + "/document",
		ResponseType: constraints.ResponseBlob,
	}, &doc)
	return doc, err
}

func (c *Client) Stats(ctx context.Context) (*v1.Stats, error) {
	return FetchJSON[v1.Stats](ctx, c, Request{Path: "/api/stats"})
}

func (c *Client) Health(ctx context.Context) (string, error) {
	var status string
	err := c.Fetch(ctx, Request{Path: "/health", Public: true, ResponseType: constraints.ResponseText}, &status)
	return status, err
}
