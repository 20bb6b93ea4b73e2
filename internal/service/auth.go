// Package service — AuthService validates Telegram Mini App init data,
// resolves it to a ledger member, and issues short-lived access tokens.
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
)

var authTracer = otel.Tracer("service/auth")

// devTelegramID identifies the synthetic admin used when DEV_MODE is on.
const devTelegramID = 999999999

// AuthService orchestrates authentication flows.
type AuthService struct {
	store       port.MemberStore
	botToken    string
	jwtSecret   []byte
	accessTTL   time.Duration
	initDataTTL time.Duration
	devMode     bool
	logger      *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.MemberStore, botToken, jwtSecret string, accessTTL, initDataTTL time.Duration, devMode bool, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:       store,
		botToken:    botToken,
		jwtSecret:   []byte(jwtSecret),
		accessTTL:   accessTTL,
		initDataTTL: initDataTTL,
		devMode:     devMode,
		logger:      logger,
	}
}

// ============================================================
// Init data validation
// ============================================================

// ValidateInitData verifies the Mini App init data signature and freshness
// and returns the embedded Telegram identity.
//
// The check string is every key=value pair except hash, sorted and joined
// with newlines; the secret key is HMAC-SHA256 of the bot token keyed with
// the literal "WebAppData".
func (s *AuthService) ValidateInitData(raw string) (*domain.TelegramUser, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "malformed init data"}
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, &domain.ErrUnauthorized{Message: "missing hash"}
	}

	pairs := make([]string, 0, len(values))
	for key, vals := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+vals[0])
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(s.botToken))
	secretKey := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(checkString))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(receivedHash)) {
		return nil, &domain.ErrUnauthorized{Message: "invalid hash"}
	}

	if authDateStr := values.Get("auth_date"); authDateStr != "" {
		authDate, err := strconv.ParseInt(authDateStr, 10, 64)
		if err != nil {
			return nil, &domain.ErrUnauthorized{Message: "malformed auth_date"}
		}
		if time.Since(time.Unix(authDate, 0)) > s.initDataTTL {
			return nil, &domain.ErrUnauthorized{Message: "init data expired"}
		}
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, &domain.ErrUnauthorized{Message: "missing user data"}
	}

	var user domain.TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, &domain.ErrUnauthorized{Message: "malformed user data"}
	}
	if user.ID == 0 {
		return nil, &domain.ErrUnauthorized{Message: "missing user id"}
	}
	return &user, nil
}

// ============================================================
// Identity resolution
// ============================================================

// Authenticate validates init data and returns the ledger member behind it.
// An unknown identity is registered as a pending member, so the roster page
// shows join requests for admins to activate. Name and handle fields refresh
// from the platform identity on every login.
func (s *AuthService) Authenticate(ctx context.Context, initData string) (*domain.Member, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	if s.devMode {
		return s.devMember(ctx)
	}

	tgUser, err := s.ValidateInitData(initData)
	if err != nil {
		return nil, err
	}

	member, err := s.store.GetMemberByTelegramID(ctx, tgUser.ID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	if member == nil {
		member, err = s.store.CreateMember(ctx, &domain.NewMemberInput{
			TelegramID: tgUser.ID,
			FirstName:  tgUser.FirstName,
			LastName:   tgUser.LastName,
			Username:   tgUser.Username,
		}, domain.RoleMember, domain.MemberPending, nil)
		if err != nil {
			return nil, fmt.Errorf("register member: %w", err)
		}
		s.logger.Info("new member registered as pending",
			zap.Int64("member_id", member.ID),
			zap.Int64("telegram_id", tgUser.ID),
		)
		return member, nil
	}

	if identityChanged(member, tgUser) {
		if err := s.store.UpdateMemberIdentity(ctx, member.ID, tgUser.FirstName, tgUser.LastName, tgUser.Username); err != nil {
			return nil, fmt.Errorf("update identity: %w", err)
		}
		member.FirstName = tgUser.FirstName
		member.LastName = tgUser.LastName
		member.Username = tgUser.Username
	}
	return member, nil
}

func identityChanged(m *domain.Member, u *domain.TelegramUser) bool {
	return m.FirstName != u.FirstName ||
		!strPtrEqual(m.LastName, u.LastName) ||
		!strPtrEqual(m.Username, u.Username)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// devMember returns the synthetic local-development admin, creating it on
// first use.
func (s *AuthService) devMember(ctx context.Context) (*domain.Member, error) {
	member, err := s.store.GetMemberByTelegramID(ctx, devTelegramID)
	if err != nil {
		return nil, fmt.Errorf("get dev member: %w", err)
	}
	if member != nil {
		return member, nil
	}

	lastName := "User"
	username := "devuser"
	member, err = s.store.CreateMember(ctx, &domain.NewMemberInput{
		TelegramID: devTelegramID,
		FirstName:  "Dev",
		LastName:   &lastName,
		Username:   &username,
	}, domain.RoleAdmin, domain.MemberActive, nil)
	if err != nil {
		return nil, fmt.Errorf("create dev member: %w", err)
	}
	s.logger.Warn("created dev admin member; never enable DEV_MODE in production")
	return member, nil
}
