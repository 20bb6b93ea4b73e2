package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// ============================================================
// Token exchange — POST /v1/auth/token
// ============================================================

// issueTokenHandler exchanges the already-authenticated identity (init data
// on this request) for a bearer token. Pending members may call it; they get
// a token that unlocks exactly what their status allows.
func issueTokenHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/token")
		defer span.End()

		member := MemberFromContext(ctx)
		resp, err := authSvc.IssueToken(ctx, member)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
