package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presence/internal/auth"
	"presence/internal/model"
	"presence/internal/store"
)

var testTokens = TokenConfig{
	Issuer:     "presence",
	SigningKey: "identity-test-signing-key",
	AccessTTL:  time.Minute,
	RefreshTTL: time.Hour,
}

func newTestService(t *testing.T) (*Service, *auth.Blacklist) {
	t.Helper()
	mr := miniredis.RunT(t)
	bl := auth.NewBlacklist(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return NewService(store.NewMemory(), testTokens, bl, zap.NewNop()), bl
}

func TestSignUpAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, SignUpInput{Email: " Teacher@School.edu ", Password: "secret1", DisplayName: "Ms. T"})
	require.NoError(t, err)
	assert.Equal(t, "teacher@school.edu", sess.Profile.Email)
	assert.Equal(t, model.RoleTeacher, sess.Profile.Role)
	assert.NotEmpty(t, sess.Tokens.AccessToken)

	claims, err := auth.Parse(sess.Tokens.AccessToken, testTokens.SigningKey, testTokens.Issuer)
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.ID, claims.Subject)

	login, err := svc.Login(ctx, "TEACHER@school.edu", "secret1")
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.ID, login.Profile.ID)

	_, err = svc.Login(ctx, "teacher@school.edu", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@school.edu", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignUpRejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "A@B.co", Password: "secret2"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = svc.SignUp(ctx, SignUpInput{Email: "c@d.co", Password: "12345"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SignUp(ctx, SignUpInput{Email: "not-an-email", Password: "secret1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStoredUserHasNoPlainPassword(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(mem, testTokens, nil, nil)
	sess, err := svc.SignUp(context.Background(), SignUpInput{Email: "a@b.co", Password: "secret1"})
	require.NoError(t, err)

	doc, err := mem.Get(context.Background(), model.CollUsers, sess.Profile.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", doc.Data["passwordHash"])
	assert.NotEmpty(t, doc.Data["passwordHash"])
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc, bl := newTestService(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1"})
	require.NoError(t, err)

	v := auth.LocalVerifier{SigningKey: testTokens.SigningKey, Issuer: testTokens.Issuer, Revoker: bl}
	id, err := v.Verify(ctx, sess.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.ID, id.UserID)

	require.NoError(t, svc.Logout(ctx, id))
	_, err = v.Verify(ctx, sess.Tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
}

func TestRefreshRotates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, sess.Tokens.AccessToken)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	next, err := svc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.ID, next.Profile.ID)

	_, err = svc.Refresh(ctx, sess.Tokens.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
}

func TestProfileLookupAndUpdateRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1", Role: "student"})
	require.NoError(t, err)

	p, err := svc.Profile(ctx, sess.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleStudent, p.Role)

	_, err = svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	byEmail, err := svc.Lookup(ctx, "firebase-uid", "A@b.co")
	require.NoError(t, err)
	assert.Equal(t, sess.Profile.ID, byEmail.ID)

	updated, err := svc.UpdateRole(ctx, sess.Profile.ID, "principal")
	require.NoError(t, err)
	assert.Equal(t, "principal", updated.Role)
	p, err = svc.Profile(ctx, sess.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "principal", p.Role)

	_, err = svc.UpdateRole(ctx, sess.Profile.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSignUpCannotRequestPrivilegedRoles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, role := range []string{model.RoleAdmin, model.RoleCoordinator, " ADMIN ", "principal"} {
		email := fmt.Sprintf("user%d@school.edu", i)
		sess, err := svc.SignUp(ctx, SignUpInput{Email: email, Password: "secret1", Role: role})
		require.NoError(t, err, role)
		assert.Equal(t, model.RoleTeacher, sess.Profile.Role, role)
		assert.Empty(t, sess.Profile.WalletAddress)

		claims, err := auth.Parse(sess.Tokens.AccessToken, testTokens.SigningKey, testTokens.Issuer)
		require.NoError(t, err)
		assert.Equal(t, model.RoleTeacher, claims.Role, role)
	}
}

func TestEnsureAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.EnsureAdmin(ctx, "Root@School.edu", "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
	assert.Equal(t, "root@school.edu", p.Email)

	again, err := svc.EnsureAdmin(ctx, "root@school.edu", "ignored-now")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	_, err = svc.Login(ctx, "root@school.edu", "bootstrap")
	require.NoError(t, err)

	existing, err := svc.SignUp(ctx, SignUpInput{Email: "head@school.edu", Password: "secret1"})
	require.NoError(t, err)
	promoted, err := svc.EnsureAdmin(ctx, "head@school.edu", "whatever")
	require.NoError(t, err)
	assert.Equal(t, existing.Profile.ID, promoted.ID)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	_, err = svc.EnsureAdmin(ctx, "short@school.edu", "123")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateWalletReachesTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.SignUp(ctx, SignUpInput{Email: "a@b.co", Password: "secret1"})
	require.NoError(t, err)

	p, err := svc.UpdateWallet(ctx, sess.Profile.ID, " 0xabc ")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", p.WalletAddress)

	login, err := svc.Login(ctx, "a@b.co", "secret1")
	require.NoError(t, err)
	claims, err := auth.Parse(login.Tokens.AccessToken, testTokens.SigningKey, testTokens.Issuer)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", claims.Wallet)

	_, err = svc.UpdateWallet(ctx, "missing", "0xabc")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
