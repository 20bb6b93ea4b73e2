package service

import (
	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
)

// requireAdmin gates admin-only operations. A deactivated admin keeps the
// role on the row but loses all rights until reactivated.
func requireAdmin(m *domain.Member, action string) error {
	if !m.IsActive() || !m.IsAdmin() {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

// requireActive gates ledger operations: pending members can only read their
// own profile.
func requireActive(m *domain.Member, action string) error {
	if !m.IsActive() {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}
