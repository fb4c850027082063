package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindConflict:
		return http.StatusConflict
	case core.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse with the status of its kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	body := models.ErrorResponse{Kind: string(kind), Message: err.Error()}
	var e *core.Error
	if errors.As(err, &e) {
		body.Message = e.Message
		body.InstanceID = e.InstanceID
		body.StepNumber = e.StepNumber
		body.Status = e.Status
	}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		body.Message = "internal error"
	} else {
		slog.DebugContext(r.Context(), "Request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}
	util.WriteJSONResponse(w, status, body)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, core.Validationf("%s", msg))
}

// principal returns the caller placed on the context by RequireAuth.
func principal(r *http.Request) core.Principal {
	p, _ := core.PrincipalFrom(r.Context())
	return p
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Validationf("%s must be an integer", name)
	}
	return n, nil
}
