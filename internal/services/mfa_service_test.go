package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/ratelimit"
)

// countingLimiter never resets, so lockout tests do not depend on the wall clock
type countingLimiter struct {
	counts map[string]int
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error) {
	l.counts[key]++
	remaining := limit - l.counts[key]
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Result{Allowed: l.counts[key] <= limit, Limit: limit, Remaining: remaining}, nil
}

func (l *countingLimiter) Peek(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error) {
	return ratelimit.Result{Allowed: l.counts[key] < limit, Limit: limit}, nil
}

type mfaFixture struct {
	repo     *MockRepository
	svc      *mfaService
	sessions *auth.Sessions
	clock    time.Time
}

func newMFAFixture(t *testing.T, maxAttempts int) *mfaFixture {
	t.Helper()
	repo := newMockRepository()
	repo.users.add(&models.User{ID: "u1", Email: "ayse@example.com", FullName: "Ayşe Yılmaz", Role: models.RoleAdmin})

	box, err := auth.NewSecretBox("test-encryption-key")
	require.NoError(t, err)
	sessions := auth.NewSessions("session-secret", time.Hour)

	f := &mfaFixture{repo: repo, sessions: sessions, clock: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewMFAService(repo, nil, testLogger(), box, sessions, &countingLimiter{counts: map[string]int{}},
		config.MFAConfig{MaxAttempts: maxAttempts, LockoutWindow: time.Minute}).(*mfaService)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func (f *mfaFixture) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := auth.CodeAt(secret, f.clock)
	require.NoError(t, err)
	return code
}

// enable runs setup and verification and returns the plaintext secret and backup codes
func (f *mfaFixture) enable(t *testing.T) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := f.svc.Setup(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifySetup(ctx, "u1", f.code(t, setup.Secret)))
	f.clock = f.clock.Add(time.Duration(auth.TOTPPeriod) * time.Second)
	return setup.Secret, setup.BackupCodes
}

func TestMFAService_SetupAndVerify(t *testing.T) {
	f := newMFAFixture(t, 10)
	ctx := context.Background()

	setup, err := f.svc.Setup(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OTPAuthURL, "otpauth://totp/")
	assert.Len(t, setup.BackupCodes, auth.BackupCodeCount)

	stored, err := f.repo.mfa.GetSecret(ctx, nil, "u1")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.NotEqual(t, setup.Secret, stored.EncryptedSecret)

	enabled, err := f.svc.IsEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.ErrorIs(t, f.svc.VerifySetup(ctx, "u1", "000000"), ErrInvalidMFACode)
	require.NoError(t, f.svc.VerifySetup(ctx, "u1", f.code(t, setup.Secret)))

	status, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.EqualValues(t, auth.BackupCodeCount, status.RemainingBackupCodes)

	_, err = f.svc.Setup(ctx, "u1")
	assert.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestMFAService_VerifySetupWithoutSetup(t *testing.T) {
	f := newMFAFixture(t, 10)
	assert.ErrorIs(t, f.svc.VerifySetup(context.Background(), "u1", "123456"), ErrMFASetupMissing)
	assert.ErrorIs(t, f.svc.Verify(context.Background(), "u1", "123456"), ErrMFANotEnabled)
}

func TestMFAService_RejectsReplayedCode(t *testing.T) {
	f := newMFAFixture(t, 10)
	ctx := context.Background()
	secret, _ := f.enable(t)

	code := f.code(t, secret)
	require.NoError(t, f.svc.Verify(ctx, "u1", code))
	assert.ErrorIs(t, f.svc.Verify(ctx, "u1", code), ErrInvalidMFACode)

	f.clock = f.clock.Add(time.Duration(auth.TOTPPeriod) * time.Second)
	assert.NoError(t, f.svc.Verify(ctx, "u1", f.code(t, secret)))
}

func TestMFAService_BackupCodeIsConsumed(t *testing.T) {
	f := newMFAFixture(t, 10)
	ctx := context.Background()
	_, backups := f.enable(t)

	// users often type the code with a separator
	typed := backups[0][:4] + "-" + backups[0][4:]
	require.NoError(t, f.svc.Verify(ctx, "u1", typed))
	assert.ErrorIs(t, f.svc.Verify(ctx, "u1", backups[0]), ErrInvalidMFACode)

	status, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, auth.BackupCodeCount-1, status.RemainingBackupCodes)
}

func TestMFAService_LocksOutAfterTooManyAttempts(t *testing.T) {
	f := newMFAFixture(t, 3)
	ctx := context.Background()
	secret, _ := f.enable(t)

	// successful codes never use up the budget
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.Verify(ctx, "u1", f.code(t, secret)))
		f.clock = f.clock.Add(time.Duration(auth.TOTPPeriod) * time.Second)
	}
	_, err := f.svc.RegenerateBackupCodes(ctx, "u1", f.code(t, secret))
	require.NoError(t, err)
	f.clock = f.clock.Add(time.Duration(auth.TOTPPeriod) * time.Second)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, f.svc.Verify(ctx, "u1", "000000"), ErrInvalidMFACode)
	}
	assert.ErrorIs(t, f.svc.Verify(ctx, "u1", f.code(t, secret)), ErrTooManyAttempts)
	assert.ErrorIs(t, f.svc.Disable(ctx, "u1", f.code(t, secret)), ErrTooManyAttempts)
}

func TestMFAService_SetupFailuresCount(t *testing.T) {
	f := newMFAFixture(t, 2)
	ctx := context.Background()

	setup, err := f.svc.Setup(ctx, "u1")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifySetup(ctx, "u1", "000000"), ErrInvalidMFACode)
	assert.ErrorIs(t, f.svc.VerifySetup(ctx, "u1", "111111"), ErrInvalidMFACode)
	assert.ErrorIs(t, f.svc.VerifySetup(ctx, "u1", f.code(t, setup.Secret)), ErrTooManyAttempts)
}

func TestMFAService_DisableAndRegenerate(t *testing.T) {
	f := newMFAFixture(t, 10)
	ctx := context.Background()
	secret, _ := f.enable(t)

	codes, err := f.svc.RegenerateBackupCodes(ctx, "u1", f.code(t, secret))
	require.NoError(t, err)
	assert.Len(t, codes.BackupCodes, auth.BackupCodeCount)

	assert.ErrorIs(t, f.svc.Disable(ctx, "u1", "000000"), ErrInvalidMFACode)
	require.NoError(t, f.svc.Disable(ctx, "u1", codes.BackupCodes[0]))

	enabled, err := f.svc.IsEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, enabled)
	remaining, err := f.repo.mfa.CountUnusedBackupCodes(ctx, nil, "u1")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestMFAService_CompleteLogin(t *testing.T) {
	f := newMFAFixture(t, 10)
	ctx := context.Background()
	secret, _ := f.enable(t)

	challenge, err := f.sessions.IssueMFAChallenge("u1")
	require.NoError(t, err)

	_, err = f.svc.CompleteLogin(ctx, "not-a-token", f.code(t, secret))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	session, err := f.svc.CompleteLogin(ctx, challenge, f.code(t, secret))
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "u1", session.User.ID)

	identity, err := f.sessions.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, identity.MFAVerified)
}

func TestMFAService_StepUpIssuesVerifiedSession(t *testing.T) {
	f := newMFAFixture(t, 10)
	ctx := context.Background()
	secret, _ := f.enable(t)

	_, err := f.svc.StepUp(ctx, "u1", "000000")
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	session, err := f.svc.StepUp(ctx, "u1", f.code(t, secret))
	require.NoError(t, err)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, models.RoleAdmin, session.User.Role)

	identity, err := f.sessions.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, identity.MFAVerified)
	assert.Equal(t, models.RoleAdmin, identity.Role)
}

func TestMFAService_StepUpWithoutMFA(t *testing.T) {
	f := newMFAFixture(t, 10)

	_, err := f.svc.StepUp(context.Background(), "u1", "123456")
	assert.ErrorIs(t, err, ErrMFANotEnabled)
}
