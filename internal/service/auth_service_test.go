package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oculoscan/oculoscan-api/internal/models"
)

type authRepoStub struct {
	users   map[string]*models.User
	byEmail map[string]*models.User
	tokens  map[string]*models.RefreshToken
	revoked []string
	logs    []*models.AuditLog
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
		tokens:  make(map[string]*models.RefreshToken),
	}
}

func (s *authRepoStub) addUser(user *models.User) {
	s.users[user.ID] = user
	s.byEmail[user.Email] = user
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := s.users[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range s.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	s.revoked = append(s.revoked, id)
	for _, token := range s.tokens {
		if token.ID == id {
			token.Revoked = true
		}
	}
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *authRepoStub) {
	t.Helper()
	repo := newAuthRepoStub()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.addUser(&models.User{
		ID:           "doctor-1",
		Email:        "reyes@clinic.test",
		PasswordHash: string(hash),
		FullName:     "Dr. Reyes",
		Role:         models.RoleDoctor,
		Active:       true,
	})
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "oculoscan-test",
	})
	return svc, repo
}

func TestAuthServiceLoginAndValidate(t *testing.T) {
	svc, repo := newAuthFixture(t)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, models.RoleDoctor, res.User.Role)
	require.Len(t, repo.logs, 1)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "doctor-1", claims.UserID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "nope",
	})
	requireCode(t, err, "INVALID_CREDENTIALS")
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.byEmail["reyes@clinic.test"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "s3cret!",
	})
	requireCode(t, err, "ACCOUNT_INACTIVE")
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, res.RefreshToken)
	require.True(t, repo.tokens[login.RefreshToken].Revoked)

	// The used token is revoked, replaying it must fail.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	requireCode(t, err, "UNAUTHORIZED")
}

func TestAuthServiceLogoutRejectsForeignToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else")
	requireCode(t, err, "FORBIDDEN")

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "doctor-1"))
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "doctor-1", models.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "brand-new-pass",
	})
	requireCode(t, err, "INVALID_CREDENTIALS")

	err = svc.ChangePassword(context.Background(), "doctor-1", models.ChangePasswordRequest{
		CurrentPassword: "s3cret!",
		NewPassword:     "short",
	})
	requireCode(t, err, "VALIDATION_ERROR")

	require.NoError(t, svc.ChangePassword(context.Background(), "doctor-1", models.ChangePasswordRequest{
		CurrentPassword: "s3cret!",
		NewPassword:     "brand-new-pass",
	}))

	// Existing sessions are revoked, the old password no longer works and the
	// new one does.
	require.True(t, repo.tokens[login.RefreshToken].Revoked)
	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "s3cret!",
	})
	requireCode(t, err, "INVALID_CREDENTIALS")
	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "reyes@clinic.test",
		Password: "brand-new-pass",
	})
	require.NoError(t, err)
}

func TestAuthServiceResolveActorReloadsRole(t *testing.T) {
	svc, repo := newAuthFixture(t)

	actor, err := svc.ResolveActor(context.Background(), "doctor-1")
	require.NoError(t, err)
	require.Equal(t, models.RoleDoctor, actor.Role)
	require.True(t, actor.IsClinician())

	// A role change in the store is visible on the very next resolve.
	repo.users["doctor-1"].Role = models.RolePatient
	actor, err = svc.ResolveActor(context.Background(), "doctor-1")
	require.NoError(t, err)
	require.Equal(t, models.RolePatient, actor.Role)

	repo.users["doctor-1"].Active = false
	_, err = svc.ResolveActor(context.Background(), "doctor-1")
	requireCode(t, err, "ACCOUNT_INACTIVE")

	_, err = svc.ResolveActor(context.Background(), "ghost")
	requireCode(t, err, "UNAUTHORIZED")
}
