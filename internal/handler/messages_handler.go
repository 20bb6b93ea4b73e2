package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// ============================================================
// Message templates — /v1/message-templates
// ============================================================

func listTemplatesHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/message-templates")
		defer span.End()

		templates, err := svc.ListTemplates(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
	}
}

func updateTemplateHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/message-templates/{templateId}")
		defer span.End()

		id, err := idParam(r, "templateId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var patch domain.TemplatePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tpl, err := svc.UpdateTemplate(ctx, MemberFromContext(ctx), id, &patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tpl)
	}
}
