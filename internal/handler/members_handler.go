package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// ============================================================
// Me — GET /v1/me
// ============================================================

func meHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me")
		defer span.End()

		profile, err := svc.Profile(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// ============================================================
// Leaderboard — GET /v1/leaderboard
// ============================================================

func leaderboardHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leaderboard")
		defer span.End()

		members, err := svc.Leaderboard(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	}
}

// ============================================================
// Roster — /v1/members
// ============================================================

func listMembersHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/members")
		defer span.End()

		members, err := svc.ListMembers(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	}
}

func addMemberHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members")
		defer span.End()

		var in domain.NewMemberInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		member, err := svc.AddMember(ctx, MemberFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, member)
	}
}

// memberLifecycleHandler covers the four status/role transitions that share
// a shape: PUT /v1/members/{memberId}/<action>.
func memberLifecycleHandler(fn func(context.Context, *domain.Member, int64) (*domain.Member, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/members/{memberId}")
		defer span.End()

		id, err := idParam(r, "memberId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		member, err := fn(ctx, MemberFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, member)
	}
}

func deactivateAllHandler(svc *service.DirectoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/members/deactivate-all")
		defer span.End()

		affected, err := svc.DeactivateAll(ctx, MemberFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deactivated": affected})
	}
}
