package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/agencydesk/internal/database/models"
)

// Authenticator turns identity provider profiles into local users and sessions.
type Authenticator interface {
	CompleteSignIn(ctx context.Context, provider string, info *UserInfo) (*AuthResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID uuid.UUID, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// IdentityProvider is the external OAuth provider.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*UserInfo, error)
}

// StateKeeper protects the OAuth round trip against CSRF.
type StateKeeper interface {
	Issue(w http.ResponseWriter, next string) (string, error)
	Verify(w http.ResponseWriter, r *http.Request, state string) (string, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator    = (*Service)(nil)
	_ TokenService     = (*JWTService)(nil)
	_ IdentityProvider = (*Provider)(nil)
	_ StateKeeper      = (*StateStore)(nil)
)
