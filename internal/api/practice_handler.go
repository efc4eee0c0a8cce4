package api

import (
	"net/http"

	"medportal/internal/service"
	v1 "medportal/pkg/api/v1"

	"github.com/gin-gonic/gin"
)

type PracticeHandler struct {
	svc *service.PracticeService
}

func NewPracticeHandler(svc *service.PracticeService) *PracticeHandler {
	return &PracticeHandler{svc: svc}
}

func (h *PracticeHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *PracticeHandler) ListUsers(c *gin.Context) {
	role := c.Query("role")
	if role != "" && !service.ValidRole(role) {
		respondError(c, http.StatusBadRequest, "Rôle inconnu", map[string]string{"role": "valeur non autorisée"})
		return
	}
	c.JSON(http.StatusOK, h.svc.ListUsers(c.Request.Context(), role))
}

func (h *PracticeHandler) CreateUser(c *gin.Context) {
	var body v1.CreateUserRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *PracticeHandler) DeleteUser(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == caller.UserID {
		respondError(c, http.StatusBadRequest, "Impossible de supprimer son propre compte", nil)
		return
	}
	if err := h.svc.DeleteUser(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PracticeHandler) ListAppointments(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.ListAppointments(c.Request.Context(), caller))
}

func (h *PracticeHandler) BookAppointment(c *gin.Context) {
	var body v1.BookAppointmentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	appt, err := h.svc.BookAppointment(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

func (h *PracticeHandler) CancelAppointment(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	appt, err := h.svc.CancelAppointment(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

func (h *PracticeHandler) ListAvailabilities(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListAvailabilities(c.Request.Context(), c.Query("medecinId")))
}

func (h *PracticeHandler) CreateAvailability(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body v1.CreateAvailabilityRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	av, err := h.svc.CreateAvailability(c.Request.Context(), caller, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, av)
}

func (h *PracticeHandler) ListPrescriptions(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.ListPrescriptions(c.Request.Context(), caller))
}

func (h *PracticeHandler) CreatePrescription(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var body v1.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	p, err := h.svc.CreatePrescription(c.Request.Context(), caller, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PrescriptionDocument serves the printable prescription as a download.
func (h *PracticeHandler) PrescriptionDocument(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id := c.Param("id")
	doc, err := h.svc.PrescriptionDocument(c.Request.Context(), caller, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ordonnance-`+id+`.txt"`)
	c.Data(http.StatusOK, "application/octet-stream", doc)
}

func (h *PracticeHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats(c.Request.Context()))
}
