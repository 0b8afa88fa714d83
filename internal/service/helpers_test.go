package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/ratelimit"
)

type sentMail struct {
	To   string
	Code int
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendOTP(_ context.Context, to, _ string, code int, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Code: code})
	return m.err
}

func (m *recordingMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// fakeImages keeps the set of stored image urls
type fakeImages struct {
	saved  int
	stored map[string]bool
	err    error
}

func (f *fakeImages) Save(_ context.Context, folder string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	if f.err != nil {
		return "", f.err
	}
	f.saved++
	url := fmt.Sprintf("/uploads/%s/img%d.jpg", folder, f.saved)
	if f.stored == nil {
		f.stored = make(map[string]bool)
	}
	f.stored[url] = true
	return url, nil
}

func (f *fakeImages) Delete(_ context.Context, url string) error {
	delete(f.stored, url)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type testEnv struct {
	repos  *repository.Repositories
	clock  *clock
	mail   *recordingMailer
	images *fakeImages
	otp    *OTPIssuer
	tokens *TokenService
	deps   AccountDeps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	otp := NewOTPIssuer(10 * time.Minute)
	otp.now = c.now
	tokens := NewTokenService("test-secret", 2*time.Hour)
	tokens.now = c.now

	env := &testEnv{
		repos:  repository.NewMemory(),
		clock:  c,
		mail:   &recordingMailer{},
		images: &fakeImages{},
		otp:    otp,
		tokens: tokens,
	}
	env.deps = AccountDeps{
		Accounts: env.repos.Accounts,
		Hasher:   NewPasswordHasher(4),
		OTP:      otp,
		Tokens:   tokens,
		Mailer:   env.mail,
		Limiter:  ratelimit.NewMemory(5, time.Hour),
		Images:   env.images,
		Log:      zap.NewNop(),
	}
	return env
}

func (e *testEnv) accounts(role models.Role) *AccountService {
	s := NewAccountService(role, e.deps)
	s.now = e.clock.now
	return s
}

// verified registers and verifies an account, returning its id
func (e *testEnv) verified(t *testing.T, role models.Role, email, phone string) string {
	t.Helper()
	ctx := context.Background()
	svc := e.accounts(role)

	res, err := svc.Register(ctx, models.RegisterRequest{
		Name: "Test " + string(role), Email: email, Password: "secret1", Phone: phone,
	}, nil)
	require.NoError(t, err)

	acct, err := e.repos.Accounts.GetByID(ctx, role, res.Account.ID)
	require.NoError(t, err)
	acct.Verified = true
	acct.OTP, acct.OTPExpiry = nil, nil
	require.NoError(t, e.repos.Accounts.Update(ctx, acct))
	return acct.ID
}

func pngBytes() io.Reader {
	return bytes.NewReader([]byte("image"))
}
