package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"medportal/internal/service"
	v1 "medportal/pkg/api/v1"
	"medportal/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func init() {
	// Report validation failures under the JSON field names the client sees.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	}
}

var fieldMessages = map[string]string{
	"required": "champ obligatoire",
	"email":    "adresse email invalide",
	"min":      "valeur trop courte",
	"oneof":    "valeur non autorisée",
	"gtfield":  "doit être postérieur au début",
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "valeur invalide"
		}
		out[fe.Field()] = msg
	}
	return out
}

func respondError(c *gin.Context, status int, msg string, fields map[string]string) {
	c.AbortWithStatusJSON(status, v1.NewErrorBody(msg, fields))
}

// writeBindError answers a request whose body or query failed to bind.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verrs):
		respondError(c, http.StatusBadRequest, "Données invalides", validationDetails(verrs))
	case errors.As(err, &typeErr):
		respondError(c, http.StatusBadRequest, "Données invalides", map[string]string{typeErr.Field: "type invalide"})
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		respondError(c, http.StatusBadRequest, "Corps de requête invalide", nil)
	default:
		respondError(c, http.StatusBadRequest, err.Error(), nil)
	}
}

// writeError maps service errors to API status codes and bodies.
func writeError(c *gin.Context, err error) {
	var fields service.ValidationError
	switch {
	case errors.As(err, &fields):
		respondError(c, http.StatusBadRequest, "Données invalides", fields)
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "Email ou mot de passe incorrect", nil)
	case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrSessionExpired):
		respondError(c, http.StatusUnauthorized, "Session expirée", nil)
	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, "Accès refusé", nil)
	case errors.Is(err, service.ErrNotFound):
		respondError(c, http.StatusNotFound, "Ressource introuvable", nil)
	case errors.Is(err, service.ErrEmailTaken):
		respondError(c, http.StatusConflict, "Cet email est déjà utilisé", map[string]string{"email": "déjà utilisé"})
	case errors.Is(err, service.ErrSlotTaken):
		respondError(c, http.StatusConflict, "Ce créneau est déjà réservé", map[string]string{"debut": "créneau indisponible"})
	case errors.Is(err, service.ErrOutsideAvailability):
		respondError(c, http.StatusBadRequest, "Le médecin n'est pas disponible sur ce créneau", map[string]string{"debut": "hors disponibilité"})
	case errors.Is(err, service.ErrInvalidState):
		respondError(c, http.StatusConflict, "Opération impossible dans l'état actuel", nil)
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Erreur interne du serveur", nil)
	}
}

// mustCaller returns the caller set by the JWT middleware, answering 401
// when it is missing.
func mustCaller(c *gin.Context) (*service.Caller, bool) {
	caller := service.GetCaller(c.Request.Context())
	if caller == nil {
		respondError(c, http.StatusUnauthorized, "Authentification requise", nil)
		return nil, false
	}
	return caller, true
}
