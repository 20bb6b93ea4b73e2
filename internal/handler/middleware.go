package handler

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

type contextKey string

const memberKey contextKey = "member"

// AuthMiddleware authenticates every request and injects the member into the
// request context. Two credential forms are accepted on the Authorization
// header:
//
//	tma <initData>  — raw Telegram Mini App init data
//	Bearer <jwt>    — an access token from POST /v1/auth/token
//
// Role and status checks stay in the service layer; this only establishes
// who is calling.
func AuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				logger.Warn("auth: missing credentials",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			var (
				member *domain.Member
				err    error
			)
			switch {
			case strings.HasPrefix(header, "tma "):
				member, err = authSvc.Authenticate(r.Context(), strings.TrimPrefix(header, "tma "))
			case len(header) > 7 && strings.EqualFold(header[:7], "Bearer "):
				member, err = authSvc.ResolveToken(r.Context(), header[7:])
			default:
				writeError(w, http.StatusUnauthorized, "unsupported authorization scheme")
				return
			}
			if err != nil {
				logger.Warn("auth: rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), memberKey, member)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MemberFromContext extracts the authenticated member from context.
func MemberFromContext(ctx context.Context) *domain.Member {
	m, _ := ctx.Value(memberKey).(*domain.Member)
	return m
}
