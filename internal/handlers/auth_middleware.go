package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/services"
	"github.com/7p-education/platform/internal/utils"
)

// Keys under which the authenticated principal is stored in the gin context
const (
	ctxUserID    = "user_id"
	ctxUser      = "user"
	ctxUserRole  = "user_role"
	ctxUserEmail = "user_email"
	ctxIdentity  = "identity"
)

// AuthMiddleware authenticates bearer tokens and enforces roles
type AuthMiddleware struct {
	verifier auth.TokenVerifier
	users    services.UserService
	mfa      services.MFAService
	logger   utils.Logger
}

func NewAuthMiddleware(verifier auth.TokenVerifier, users services.UserService, mfa services.MFAService, logger utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		mfa:      mfa,
		logger:   logger,
	}
}

// RequireAuth rejects requests without a valid bearer token.
// The local user row is created on first sight of a new identity.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, tokenErrorMessage(err), nil)
			return
		}

		identity, err := am.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, tokenErrorMessage(err), nil)
			return
		}

		user, err := am.users.SyncIdentity(c.Request.Context(), identity)
		if err != nil {
			if errors.Is(err, services.ErrUnauthenticated) {
				respondError(c, http.StatusUnauthorized, CodeUnauthorized, tokenErrorMessage(auth.ErrInvalidToken), nil)
				return
			}
			utils.GetLogger(c, am.logger).Error("Failed to sync user identity", "error", err, "user_id", identity.UserID)
			respondError(c, http.StatusInternalServerError, CodeInternal, "Beklenmeyen bir hata oluştu", nil)
			return
		}

		setPrincipal(c, user, identity)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and never rejects
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Next()
			return
		}

		identity, err := am.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}

		if user, err := am.users.SyncIdentity(c.Request.Context(), identity); err == nil {
			setPrincipal(c, user, identity)
		}
		c.Next()
	}
}

// RequireRole checks if user has required role. Admins always pass.
func (am *AuthMiddleware) RequireRole(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetUserRoleFromContext(c)
		if err != nil {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Oturum açmanız gerekiyor", nil)
			return
		}

		for _, required := range requiredRoles {
			if role == required || role == models.RoleAdmin {
				c.Next()
				return
			}
		}

		respondError(c, http.StatusForbidden, CodeForbidden, "Bu işlem için yetkiniz yok",
			gin.H{"required_roles": requiredRoles})
	}
}

// RequireMFA demands an MFA verified session from users who enabled MFA
func (am *AuthMiddleware) RequireMFA() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := GetIdentityFromContext(c)
		if err != nil {
			respondError(c, http.StatusUnauthorized, CodeUnauthorized, "Oturum açmanız gerekiyor", nil)
			return
		}
		if identity.MFAVerified {
			c.Next()
			return
		}

		enabled, err := am.mfa.IsEnabled(c.Request.Context(), identity.UserID)
		if err != nil {
			utils.GetLogger(c, am.logger).Error("Failed to check mfa status", "error", err, "user_id", identity.UserID)
			respondError(c, http.StatusInternalServerError, CodeInternal, "Beklenmeyen bir hata oluştu", nil)
			return
		}
		if enabled {
			respondError(c, http.StatusForbidden, CodeMFARequired, "Bu işlem için iki adımlı doğrulama gerekiyor", nil)
			return
		}
		c.Next()
	}
}

func tokenErrorMessage(err error) string {
	if errors.Is(err, auth.ErrMissingToken) {
		return "Yetkilendirme başlığı eksik"
	}
	return "Geçersiz veya süresi dolmuş oturum"
}

func setPrincipal(c *gin.Context, user *models.User, identity *auth.Identity) {
	c.Set(ctxUserID, user.ID)
	c.Set(ctxUser, user)
	c.Set(ctxUserRole, user.Role)
	c.Set(ctxUserEmail, user.Email)
	c.Set(ctxIdentity, identity)
}

// GetUserFromContext extracts user from Gin context
func GetUserFromContext(c *gin.Context) (*models.User, error) {
	user, exists := c.Get(ctxUser)
	if !exists {
		return nil, fmt.Errorf("user not found in context")
	}

	userModel, ok := user.(*models.User)
	if !ok {
		return nil, fmt.Errorf("invalid user type in context")
	}

	return userModel, nil
}

// GetUserIDFromContext extracts user ID from Gin context
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}

// GetUserRoleFromContext extracts user role from Gin context
func GetUserRoleFromContext(c *gin.Context) (models.UserRole, error) {
	userRole, exists := c.Get(ctxUserRole)
	if !exists {
		return "", fmt.Errorf("user role not found in context")
	}

	role, ok := userRole.(models.UserRole)
	if !ok {
		return "", fmt.Errorf("invalid user role type in context")
	}

	return role, nil
}

func GetIdentityFromContext(c *gin.Context) (*auth.Identity, error) {
	v, exists := c.Get(ctxIdentity)
	if !exists {
		return nil, fmt.Errorf("identity not found in context")
	}
	identity, ok := v.(*auth.Identity)
	if !ok {
		return nil, fmt.Errorf("invalid identity type in context")
	}
	return identity, nil
}
