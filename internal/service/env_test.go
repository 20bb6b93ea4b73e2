package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/cache"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/sqlite"
	"github.com/jerealeksanteri/skilta-piikki/internal/service"
)

// --- Recording sender ---

type recordedMessage struct {
	TelegramID int64
	Text       string
}

// recordingSender captures delivered notifications and signals each send so
// tests can wait for the async dispatcher.
type recordingSender struct {
	mu       sync.Mutex
	messages []recordedMessage
	fail     bool
	sent     chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan struct{}, 32)}
}

func (s *recordingSender) Send(_ context.Context, telegramID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.sent <- struct{}{} }()
	if s.fail {
		return errors.New("send failed")
	}
	s.messages = append(s.messages, recordedMessage{TelegramID: telegramID, Text: text})
	return nil
}

func (s *recordingSender) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *recordingSender) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification dispatch")
	}
}

func (s *recordingSender) all() []recordedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedMessage(nil), s.messages...)
}

// --- Test environment ---

type testEnv struct {
	store     *sqlite.DB
	sender    *recordingSender
	auth      *service.AuthService
	directory *service.DirectoryService
	catalog   *service.CatalogService
	ledger    *service.LedgerService
	fiscal    *service.FiscalService
	messaging *service.MessagingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Seed(context.Background(), nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	metrics := observability.NewMetrics()
	sender := newRecordingSender()
	leaderboardCache := cache.New[[]domain.Member](time.Minute)

	messaging := service.NewMessagingService(store, sender, metrics, logger)
	return &testEnv{
		store:     store,
		sender:    sender,
		auth:      service.NewAuthService(store, "test-bot-token", "test-secret", time.Hour, time.Hour, false, logger),
		directory: service.NewDirectoryService(store, leaderboardCache, metrics, logger),
		catalog:   service.NewCatalogService(store, cache.New[[]domain.Product](time.Minute), metrics, logger),
		ledger:    service.NewLedgerService(store, messaging, leaderboardCache, metrics, logger),
		fiscal:    service.NewFiscalService(store, messaging, leaderboardCache, metrics, logger),
		messaging: messaging,
	}
}

// --- Fixtures ---

var nextTelegramID int64 = 1000

func (e *testEnv) addAdmin(t *testing.T, name string) *domain.Member {
	return e.addMemberWith(t, name, domain.RoleAdmin, domain.MemberActive)
}

func (e *testEnv) addActiveMember(t *testing.T, name string) *domain.Member {
	return e.addMemberWith(t, name, domain.RoleMember, domain.MemberActive)
}

func (e *testEnv) addMemberWith(t *testing.T, name string, role domain.Role, status domain.MemberStatus) *domain.Member {
	t.Helper()
	nextTelegramID++
	m, err := e.store.CreateMember(context.Background(), &domain.NewMemberInput{
		TelegramID: nextTelegramID,
		FirstName:  name,
	}, role, status, nil)
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}

func (e *testEnv) addProduct(t *testing.T, name, price string) *domain.Product {
	t.Helper()
	p, err := e.store.CreateProduct(context.Background(), &domain.NewProductInput{
		Name:  name,
		Price: mustDecimal(t, price),
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func (e *testEnv) reload(t *testing.T, id int64) *domain.Member {
	t.Helper()
	m, err := e.store.GetMemberByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload member %d: %v", id, err)
	}
	return m
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func assertDecimal(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(mustDecimal(t, want)) {
		t.Errorf("expected %s, got %s", want, got.String())
	}
}
