// Package guard decides whether an authenticated caller may run an operation.
// It never validates tokens: the principal must come from an already verified access token.
package guard

import (
	"fmt"

	"github.com/nkiryanov/contestgate/internal/apperrors"
	"github.com/nkiryanov/contestgate/internal/models"
)

// Authorize permits the call when the principal's role is in the required set
// nil principal means authentication never happened and is reported as ErrUnauthenticated, not ErrForbidden
func Authorize(p *models.Principal, required models.RoleSet) error {
	if p == nil {
		return apperrors.ErrUnauthenticated
	}

	if !required.Has(p.Role) {
		return fmt.Errorf("role %s is not in %s: %w", p.Role, required, apperrors.ErrForbidden)
	}

	return nil
}
