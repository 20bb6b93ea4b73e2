package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

// ============================================================
// Token exchange — POST /v1/auth/token
// ============================================================

// IssueToken exchanges a validated identity for a short-lived access token,
// sparing clients from re-sending init data on every request.
func (s *AuthService) IssueToken(ctx context.Context, member *domain.Member) (*domain.TokenResponse, error) {
	_, span := authTracer.Start(ctx, "AuthService.IssueToken")
	defer span.End()

	token, err := s.signAccessToken(member)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Debug("access token issued", zap.Int64("member_id", member.ID))
	return &domain.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
	}, nil
}

// ============================================================
// ValidateToken — used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub  int64  `json:"sub"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}

	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}

	return claims, nil
}

// ResolveToken validates the token and loads the member it names. The member
// row is re-read on every request so role and status changes bite
// immediately rather than at token expiry.
func (s *AuthService) ResolveToken(ctx context.Context, tokenString string) (*domain.Member, error) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	member, err := s.store.GetMemberByID(ctx, claims.Sub)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "unknown member"}
	}
	return member, nil
}

// ============================================================
// Internal JWT helpers
// ============================================================

func (s *AuthService) signAccessToken(member *domain.Member) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:  member.ID,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "piikki-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
