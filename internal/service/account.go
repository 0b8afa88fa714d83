package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/mailer"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/ratelimit"
	"github.com/bellyrush/marketplace/internal/storage"
)

// mailTimeout bounds the background OTP mail sent on registration
const mailTimeout = 30 * time.Second

// AuthResult is returned by every operation that signs the caller in
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// AccountDeps are shared by the account services of all roles
type AccountDeps struct {
	Accounts repository.AccountStore
	Hasher   *PasswordHasher
	OTP      *OTPIssuer
	Tokens   *TokenService
	Mailer   mailer.Mailer
	Limiter  ratelimit.Limiter
	Images   storage.ImageStore
	Log      *zap.Logger
}

// AccountService implements registration, verification, login and
// profile management for a single role.
type AccountService struct {
	role models.Role
	AccountDeps

	now func() time.Time
	wg  sync.WaitGroup
}

func NewAccountService(role models.Role, deps AccountDeps) *AccountService {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &AccountService{role: role, AccountDeps: deps, now: time.Now}
}

// Role returns the role this service manages
func (s *AccountService) Role() models.Role {
	return s.role
}

// Wait blocks until background mail has been handed off
func (s *AccountService) Wait() {
	s.wg.Wait()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account, mails its OTP and signs it in
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest, image io.Reader) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if email == "" || name == "" || phone == "" {
		return nil, fmt.Errorf("%w: name, email and phone are required", ErrBadRequest)
	}

	digest, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	acct := &models.Account{
		ID:           uuid.NewString(),
		Role:         s.role,
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: digest,
		Profile:      models.NewProfile(s.role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	applyRegisterProfile(&acct.Profile, req)

	code, _, err := s.OTP.Issue(acct)
	if err != nil {
		return nil, err
	}

	if image != nil {
		url, err := saveImage(ctx, s.Images, s.role.Collection(), image)
		if err != nil {
			return nil, err
		}
		acct.Image = url
	}

	if err := s.Accounts.Create(ctx, acct); err != nil {
		s.discardImage(ctx, acct.Image)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s with this email or phone already exists", ErrConflict, s.role)
		}
		return nil, fmt.Errorf("failed to create %s: %w", s.role, err)
	}

	s.sendOTPAsync(acct.Email, acct.Name, code)

	return s.signIn(acct)
}

func applyRegisterProfile(p *models.Profile, req models.RegisterRequest) {
	switch {
	case p.Vendor != nil:
		p.Vendor.OpeningHours = req.OpeningHours
		p.Vendor.Cuisine = req.Cuisine
		p.Vendor.Address = req.Address
	case p.Delivery != nil:
		p.Delivery.Location = req.Location
	}
}

// sendOTPAsync mails the code without holding up the response. Failures
// are logged only; the user can ask for a resend.
func (s *AccountService) sendOTPAsync(to, name string, code int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		if err := s.Mailer.SendOTP(ctx, to, name, code, s.OTP.TTL()); err != nil {
			s.Log.Error("failed to send otp mail",
				zap.String("role", string(s.role)), zap.String("email", to), zap.Error(err))
		}
	}()
}

func (s *AccountService) signIn(acct *models.Account) (*AuthResult, error) {
	token, expiresAt, err := s.Tokens.Issue(acct.ID, s.role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, Account: acct}, nil
}

func (s *AccountService) byEmail(ctx context.Context, email string) (*models.Account, error) {
	acct, err := s.Accounts.GetByEmail(ctx, s.role, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no %s with this email", ErrNotFound, s.role)
		}
		return nil, fmt.Errorf("failed to get %s: %w", s.role, err)
	}
	return acct, nil
}

func (s *AccountService) allow(ctx context.Context, email string) error {
	ok, err := s.Limiter.Allow(ctx, string(s.role)+":"+email)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Login checks the password of a verified account. Unverified accounts are
// refused before the password is looked at.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrBadRequest)
	}

	acct, err := s.byEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !acct.Verified {
		return nil, ErrNotVerified
	}
	if !s.Hasher.Compare(password, acct.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if acct.OTP != nil || acct.OTPExpiry != nil {
		acct.OTP = nil
		acct.OTPExpiry = nil
		acct.UpdatedAt = s.now().UTC()
		if err := s.Accounts.Update(ctx, acct); err != nil {
			return nil, fmt.Errorf("failed to clear otp: %w", err)
		}
	}

	return s.signIn(acct)
}

// ResendOTP issues a fresh code and mails it before returning
func (s *AccountService) ResendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrBadRequest)
	}
	if err := s.allow(ctx, email); err != nil {
		return err
	}

	acct, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if acct.Verified {
		return ErrAlreadyVerified
	}

	code, _, err := s.OTP.Issue(acct)
	if err != nil {
		return err
	}
	acct.UpdatedAt = s.now().UTC()
	if err := s.Accounts.Update(ctx, acct); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	if err := s.Mailer.SendOTP(ctx, acct.Email, acct.Name, code, s.OTP.TTL()); err != nil {
		return fmt.Errorf("failed to send otp mail: %w", err)
	}
	return nil
}

// VerifyOTP marks the account verified and signs it in
func (s *AccountService) VerifyOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, fmt.Errorf("%w: email and OTP are required", ErrBadRequest)
	}
	if err := s.allow(ctx, email); err != nil {
		return nil, err
	}

	acct, err := s.byEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct.Verified {
		return nil, ErrAlreadyVerified
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return nil, ErrInvalidCode
	}
	if err := s.OTP.Verify(acct, n); err != nil {
		return nil, err
	}

	acct.UpdatedAt = s.now().UTC()
	if err := s.Accounts.Update(ctx, acct); err != nil {
		return nil, fmt.Errorf("failed to store verification: %w", err)
	}

	return s.signIn(acct)
}

// Profile returns the caller's own account
func (s *AccountService) Profile(ctx context.Context, id string) (*models.Account, error) {
	return lookupAccount(ctx, s.Accounts, s.role, id)
}

// UpdateProfile applies the non-nil fields of req
func (s *AccountService) UpdateProfile(ctx context.Context, id string, req models.ProfileUpdateRequest, image io.Reader) (*models.Account, error) {
	acct, err := lookupAccount(ctx, s.Accounts, s.role, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		acct.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		acct.Phone = strings.TrimSpace(*req.Phone)
	}
	if acct.Name == "" || acct.Phone == "" {
		return nil, fmt.Errorf("%w: name and phone cannot be empty", ErrBadRequest)
	}
	applyProfileUpdate(&acct.Profile, req)

	previous := acct.Image
	if image != nil {
		url, err := saveImage(ctx, s.Images, s.role.Collection(), image)
		if err != nil {
			return nil, err
		}
		acct.Image = url
	}

	acct.UpdatedAt = s.now().UTC()
	if err := s.Accounts.Update(ctx, acct); err != nil {
		if acct.Image != previous {
			s.discardImage(ctx, acct.Image)
		}
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, fmt.Errorf("%w: phone already in use", ErrConflict)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.role)
		}
		return nil, fmt.Errorf("failed to update %s: %w", s.role, err)
	}
	if acct.Image != previous {
		s.discardImage(ctx, previous)
	}
	return acct, nil
}

func (s *AccountService) discardImage(ctx context.Context, url string) {
	if err := discardImage(ctx, s.Images, url); err != nil {
		s.Log.Warn("failed to remove unused image",
			zap.String("role", string(s.role)), zap.String("url", url), zap.Error(err))
	}
}

func applyProfileUpdate(p *models.Profile, req models.ProfileUpdateRequest) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	if p.Vendor != nil {
		set(&p.Vendor.OpeningHours, req.OpeningHours)
		set(&p.Vendor.Cuisine, req.Cuisine)
		set(&p.Vendor.Address, req.Address)
	}
	if p.Delivery != nil {
		set(&p.Delivery.Location, req.Location)
		set(&p.Delivery.Status, req.Status)
	}
}

// lookupAccount loads the account behind an authenticated subject
func lookupAccount(ctx context.Context, store repository.AccountStore, role models.Role, id string) (*models.Account, error) {
	acct, err := store.GetByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, role)
		}
		return nil, fmt.Errorf("failed to get %s: %w", role, err)
	}
	return acct, nil
}

// verifiedAccount is lookupAccount for role actions: the subject must still
// exist and must have completed OTP verification.
func verifiedAccount(ctx context.Context, store repository.AccountStore, role models.Role, id string) (*models.Account, error) {
	acct, err := store.GetByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to get %s: %w", role, err)
	}
	if !acct.Verified {
		return nil, ErrNotVerified
	}
	return acct, nil
}
