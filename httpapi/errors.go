package httpapi

import (
	"net/http"

	"indyforge.dev/forge/forgeerr"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toErrorBody(err error) errorBody {
	kind, code := forgeerr.KindOf(err), forgeerr.CodeOf(err)
	if kind == "" {
		return errorBody{Kind: "Internal", Code: "Internal", Message: "internal error"}
	}
	return errorBody{Kind: string(kind), Code: string(code), Message: err.Error()}
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	if forgeerr.HasCode(err, forgeerr.NotArchived) && forgeerr.IsKind(err, forgeerr.KindInput) {
		return http.StatusNotFound
	}
	switch forgeerr.KindOf(err) {
	case forgeerr.KindInput:
		return http.StatusBadRequest
	case forgeerr.KindDerivation, forgeerr.KindConfig:
		return http.StatusUnprocessableEntity
	case forgeerr.KindTransport:
		return http.StatusBadGateway
	case forgeerr.KindSubmission, forgeerr.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, toErrorBody(err))
}
