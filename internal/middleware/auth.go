package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flicky/smart-inventory/internal/service"
)

const (
	ctxUserID      = "userID"
	ctxUserRole    = "userRole"
	ctxTokenID     = "tokenID"
	ctxTokenExpiry = "tokenExpiry"
)

var errNoToken = errors.New("missing bearer token")

// RevocationChecker reports whether a token id has been logged out and
// which role, if any, a user has been reassigned to.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PinnedRole(ctx context.Context, userID uuid.UUID) (string, error)
}

type Authenticator struct {
	secret  []byte
	revoked RevocationChecker
}

func NewAuthenticator(secret string, revoked RevocationChecker) *Authenticator {
	return &Authenticator{secret: []byte(secret), revoked: revoked}
}

// Required rejects requests without a valid, non-revoked token.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.authenticate(c); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// Optional identifies the caller when a token is present and lets guests through.
// A token that is present but invalid is still rejected.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.authenticate(c); err != nil && !errors.Is(err, errNoToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func (a *Authenticator) authenticate(c *gin.Context) error {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return errNoToken
	}

	token, err := jwt.Parse(header[7:], func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return errors.New("invalid user id")
	}

	jti, _ := claims["jti"].(string)
	if jti != "" && a.revoked != nil {
		revoked, err := a.revoked.IsRevoked(c.Request.Context(), jti)
		if err != nil || revoked {
			return errors.New("token revoked")
		}
	}

	role, _ := claims["role"].(string)
	if a.revoked != nil {
		pinned, err := a.revoked.PinnedRole(c.Request.Context(), userID)
		if err != nil || (pinned != "" && pinned != role) {
			return errors.New("token revoked")
		}
	}

	c.Set(ctxUserID, userID)
	c.Set(ctxUserRole, role)
	c.Set(ctxTokenID, jti)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.Set(ctxTokenExpiry, exp.Time)
	}
	return nil
}

// RequireOperation enforces the role policy for op. It must run after Required.
func RequireOperation(policy service.Policy, op service.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxUserID); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := policy.Authorize(GetUserRole(c), op); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(uuid.UUID)
	return uid
}

func GetUserRole(c *gin.Context) string {
	role, _ := c.Get(ctxUserRole)
	r, _ := role.(string)
	return r
}

// GetIdentity returns nil for guests.
func GetIdentity(c *gin.Context) *service.Identity {
	id, ok := c.Get(ctxUserID)
	if !ok {
		return nil
	}
	uid, _ := id.(uuid.UUID)
	return &service.Identity{UserID: uid, Role: GetUserRole(c)}
}

func GetToken(c *gin.Context) (string, time.Time) {
	jti := c.GetString(ctxTokenID)
	exp, _ := c.Get(ctxTokenExpiry)
	t, _ := exp.(time.Time)
	return jti, t
}
