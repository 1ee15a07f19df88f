package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// ErrTokenRevoked is returned for tokens that were logged out.
var ErrTokenRevoked = errors.New("token revoked")

// Identity is the authenticated caller.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	Wallet    string
	TokenID   string
	ExpiresAt time.Time
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// LocalVerifier accepts access tokens issued by this service.
type LocalVerifier struct {
	SigningKey string
	Issuer     string
	Revoker    Revoker // optional
}

// Verify implements Verifier.
func (v LocalVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := Parse(token, v.SigningKey, v.Issuer)
	if err != nil {
		return Identity{}, err
	}
	if claims.Kind != KindAccess {
		return Identity{}, ErrTokenInvalid
	}
	if v.Revoker != nil && claims.ID != "" {
		revoked, err := v.Revoker.Revoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, err
		}
		if revoked {
			return Identity{}, ErrTokenRevoked
		}
	}
	id := Identity{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
		Wallet:  claims.Wallet,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

// Verify implements Verifier.
func (c Chain) Verify(ctx context.Context, token string) (Identity, error) {
	err := error(ErrTokenInvalid)
	for _, v := range c {
		id, verr := v.Verify(ctx, token)
		if verr == nil {
			return id, nil
		}
		err = verr
	}
	return Identity{}, err
}

// Authenticate enforces bearer tokens accepted by v.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := v.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			msg := "invalid token"
			switch {
			case errors.Is(err, ErrTokenExpired):
				msg = "token expired"
			case errors.Is(err, ErrTokenRevoked):
				msg = "token revoked"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		for _, r := range roles {
			if strings.EqualFold(id.Role, r) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// FromContext returns the identity set by Authenticate.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) (string, bool) {
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[len("bearer "):])
	return tok, tok != ""
}
