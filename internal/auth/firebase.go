package auth

import (
	"context"
	"fmt"
	"time"

	fbauth "firebase.google.com/go/v4/auth"

	"presence/internal/model"
)

// IDTokenVerifier is the part of the Firebase Auth client used here.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// ProfileLookup resolves a stored profile by user id, falling back to
// email.
type ProfileLookup func(ctx context.Context, userID, email string) (model.Profile, error)

// FirebaseVerifier accepts Firebase ID tokens. Role and wallet come from
// the stored profile when Profiles is set, else from custom claims.
type FirebaseVerifier struct {
	Client   IDTokenVerifier
	Profiles ProfileLookup
}

// Verify implements Verifier.
func (v FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	tok, err := v.Client.VerifyIDToken(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	id := Identity{
		UserID:    tok.UID,
		TokenID:   tok.UID + ":" + fmt.Sprint(tok.IssuedAt),
		ExpiresAt: time.Unix(tok.Expires, 0),
	}
	if email, ok := tok.Claims["email"].(string); ok {
		id.Email = email
	}
	if role, ok := tok.Claims["role"].(string); ok {
		id.Role = role
	}
	if wallet, ok := tok.Claims["wallet"].(string); ok {
		id.Wallet = wallet
	}
	if v.Profiles != nil {
		p, err := v.Profiles(ctx, tok.UID, id.Email)
		if err == nil {
			id.Role = p.Role
			id.Wallet = p.WalletAddress
			if p.Email != "" {
				id.Email = p.Email
			}
		}
	}
	if id.Role == "" {
		id.Role = model.RoleTeacher
	}
	return id, nil
}
