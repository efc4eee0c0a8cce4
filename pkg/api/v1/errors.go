package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorBody is the error envelope of the practice API.
// Both fields are optional on the wire.
type ErrorBody struct {
	Message *string           `json:"message,omitempty"`
	Erreurs map[string]string `json:"erreurs,omitempty"`
}

// ParseErrorBody decodes raw into an ErrorBody. It never fails: each field
// is decoded on its own, a message that is not a string is dropped, and
// only the string entries of erreurs are kept.
func ParseErrorBody(raw []byte) ErrorBody {
	var body ErrorBody
	var envelope struct {
		Message json.RawMessage `json:"message"`
		Erreurs json.RawMessage `json:"erreurs"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &envelope) != nil {
		return body
	}

	var msg string
	if json.Unmarshal(envelope.Message, &msg) == nil {
		body.Message = &msg
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(envelope.Erreurs, &fields) == nil {
		for name, value := range fields {
			var text string
			if json.Unmarshal(value, &text) != nil {
				continue
			}
			if body.Erreurs == nil {
				body.Erreurs = make(map[string]string, len(fields))
			}
			body.Erreurs[name] = text
		}
	}
	return body
}

// Resolve returns the human readable message and the field details,
// falling back to a generic message derived from status.
func (b ErrorBody) Resolve(status int) (string, map[string]string) {
	msg := ""
	if b.Message != nil {
		msg = strings.TrimSpace(*b.Message)
	}
	if msg == "" {
		msg = GenericMessage(status)
	}
	var details map[string]string
	if len(b.Erreurs) > 0 {
		details = b.Erreurs
	}
	return msg, details
}

func GenericMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("request failed with status %d (%s)", status, text)
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func NewErrorBody(message string, fields map[string]string) ErrorBody {
	return ErrorBody{Message: &message, Erreurs: fields}
}
