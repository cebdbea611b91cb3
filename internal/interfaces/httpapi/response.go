package httpapi

import (
	"context"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/live-match/internal/usecase"
)

const (
	googleAPIVersion = "2.0"
	errorDomain      = "live-match"
)

type googleResponseEnvelope struct {
	APIVersion string           `json:"apiVersion"`
	Data       any              `json:"data,omitempty"`
	Error      *googleErrorBody `json:"error,omitempty"`
}

type googleErrorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Status  string            `json:"status"`
	Errors  []googleErrorItem `json:"errors,omitempty"`
}

type googleErrorItem struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type mappedError struct {
	HTTPStatus int
	Reason     string
	Status     string
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	ctx, span := startSpan(ctx, "httpapi.writeJSON")
	defer span.End()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data any) {
	ctx, span := startSpan(ctx, "httpapi.writeSuccess")
	defer span.End()

	writeJSON(ctx, w, status, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Data:       data,
	})
}

var (
	internalMapping = mappedError{HTTPStatus: http.StatusInternalServerError, Reason: "internalError", Status: "INTERNAL"}

	kindMappings = map[usecase.Kind]mappedError{
		usecase.KindValidation:    {HTTPStatus: http.StatusBadRequest, Reason: "invalidInput", Status: "INVALID_ARGUMENT"},
		usecase.KindNotFound:      {HTTPStatus: http.StatusNotFound, Reason: "notFound", Status: "NOT_FOUND"},
		usecase.KindStateConflict: {HTTPStatus: http.StatusConflict, Reason: "stateConflict", Status: "FAILED_PRECONDITION"},
		usecase.KindExhausted:     {HTTPStatus: http.StatusServiceUnavailable, Reason: "noStreamsAvailable", Status: "RESOURCE_EXHAUSTED"},
		usecase.KindDependency:    {HTTPStatus: http.StatusBadGateway, Reason: "dependencyUnavailable", Status: "UNAVAILABLE"},
		usecase.KindUnauthorized:  {HTTPStatus: http.StatusUnauthorized, Reason: "unauthorized", Status: "UNAUTHENTICATED"},
	}
)

// writeError maps err through its taxonomy kind. Fatal errors never expose
// their message to the caller.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ctx, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	kind := usecase.KindOf(err)
	mapped, ok := kindMappings[kind]
	message := err.Error()
	if !ok {
		mapped = internalMapping
		message = "internal server error"
	}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "5")
	}

	writeJSON(ctx, w, mapped.HTTPStatus, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error: &googleErrorBody{
			Code:    mapped.HTTPStatus,
			Message: message,
			Status:  mapped.Status,
			Errors: []googleErrorItem{{
				Domain:  errorDomain,
				Reason:  mapped.Reason,
				Message: message,
			}},
		},
	})
}
