package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/ratelimit"
	"github.com/bellyrush/marketplace/internal/storage"
)

type AccountServiceSuite struct {
	suite.Suite
	env    *testEnv
	buyers *AccountService
	ctx    context.Context
}

func (s *AccountServiceSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.buyers = s.env.accounts(models.RoleBuyer)
	s.ctx = context.Background()
}

func (s *AccountServiceSuite) register(email, phone string) *AuthResult {
	res, err := s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: email, Password: "secret1", Phone: phone,
	}, nil)
	s.Require().NoError(err)
	s.buyers.Wait()
	return res
}

func (s *AccountServiceSuite) TestRegister() {
	res := s.register("A@X.com ", "0211234567")

	s.NotEmpty(res.Token)
	s.Equal("a@x.com", res.Account.Email)
	s.Equal(models.RoleBuyer, res.Account.Role)
	s.False(res.Account.Verified)
	s.NotEqual("secret1", res.Account.PasswordHash)
	s.NotNil(res.Account.Profile.Buyer)

	sub, err := s.env.tokens.Verify(res.Token)
	s.Require().NoError(err)
	s.Equal(res.Account.ID, sub.ID)
	s.Equal(models.RoleBuyer, sub.Role)

	stored, err := s.env.repos.Accounts.GetByID(s.ctx, models.RoleBuyer, res.Account.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.OTP)
	s.Equal(s.env.clock.t.Add(10*time.Minute), *stored.OTPExpiry)

	mail := s.env.mail.last()
	s.Equal("a@x.com", mail.To)
	s.Equal(*stored.OTP, mail.Code)
}

func (s *AccountServiceSuite) TestRegisterConflict() {
	s.register("a@x.com", "0211234567")

	_, err := s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0219999999",
	}, nil)
	s.ErrorIs(err, ErrConflict)

	_, err = s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Bob", Email: "b@x.com", Password: "secret1", Phone: "0211234567",
	}, nil)
	s.ErrorIs(err, ErrConflict)
}

func (s *AccountServiceSuite) TestSameEmailDifferentRoles() {
	s.register("a@x.com", "0211234567")

	vendors := s.env.accounts(models.RoleVendor)
	res, err := vendors.Register(s.ctx, models.RegisterRequest{
		Name: "Ada's Kitchen", Email: "a@x.com", Password: "secret1", Phone: "0211234567",
		Cuisine: "Thai", Address: "1 Queen St",
	}, nil)
	s.Require().NoError(err)
	vendors.Wait()

	s.Require().NotNil(res.Account.Profile.Vendor)
	s.Equal("Thai", res.Account.Profile.Vendor.Cuisine)
	s.Equal(models.DefaultCommissionRate, res.Account.Profile.Vendor.CommissionRate)
}

func (s *AccountServiceSuite) TestRegisterStoresImage() {
	res, err := s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0211234567",
	}, pngBytes())
	s.Require().NoError(err)
	s.buyers.Wait()

	s.Equal("/uploads/buyers/img1.jpg", res.Account.Image)
	s.Equal(1, s.env.images.saved)
}

func (s *AccountServiceSuite) TestRegisterConflictRemovesImage() {
	s.register("a@x.com", "0211234567")

	_, err := s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0219999999",
	}, pngBytes())
	s.ErrorIs(err, ErrConflict)
	s.Equal(1, s.env.images.saved)
	s.Empty(s.env.images.stored)
}

func (s *AccountServiceSuite) TestRegisterImageErrors() {
	s.env.images.err = fmt.Errorf("%w: too large", storage.ErrInvalidImage)
	_, err := s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0211234567",
	}, pngBytes())
	s.ErrorIs(err, ErrBadRequest)

	s.env.images.err = errors.New("bucket unreachable")
	_, err = s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0211234567",
	}, pngBytes())
	s.Require().Error(err)
	s.NotErrorIs(err, ErrBadRequest)

	_, err = s.env.repos.Accounts.GetByEmail(s.ctx, models.RoleBuyer, "a@x.com")
	s.Error(err, "no account without its image")
}

func (s *AccountServiceSuite) TestRegisterSurvivesMailFailure() {
	s.env.mail.err = errors.New("provider down")

	res, err := s.buyers.Register(s.ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0211234567",
	}, nil)
	s.buyers.Wait()

	s.Require().NoError(err)
	s.NotEmpty(res.Token)
}

func (s *AccountServiceSuite) TestLoginUnverified() {
	s.register("a@x.com", "0211234567")

	_, err := s.buyers.Login(s.ctx, "a@x.com", "secret1")
	s.ErrorIs(err, ErrNotVerified)

	_, err = s.buyers.Login(s.ctx, "a@x.com", "wrong-password")
	s.ErrorIs(err, ErrNotVerified)
}

func (s *AccountServiceSuite) TestLogin() {
	res := s.register("a@x.com", "0211234567")
	code := s.env.mail.last().Code

	_, err := s.buyers.VerifyOTP(s.ctx, "a@x.com", strconv.Itoa(code))
	s.Require().NoError(err)

	_, err = s.buyers.Login(s.ctx, "a@x.com", "secret2")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, err = s.buyers.Login(s.ctx, "nobody@x.com", "secret1")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.buyers.Login(s.ctx, "", "secret1")
	s.ErrorIs(err, ErrBadRequest)

	out, err := s.buyers.Login(s.ctx, "A@x.com", "secret1")
	s.Require().NoError(err)
	s.Equal(res.Account.ID, out.Account.ID)
	s.NotEmpty(out.Token)
}

func (s *AccountServiceSuite) TestLoginClearsPendingOTP() {
	res := s.register("a@x.com", "0211234567")

	// verified but a stale code is still stored
	acct, err := s.env.repos.Accounts.GetByID(s.ctx, models.RoleBuyer, res.Account.ID)
	s.Require().NoError(err)
	acct.Verified = true
	s.Require().NoError(s.env.repos.Accounts.Update(s.ctx, acct))

	_, err = s.buyers.Login(s.ctx, "a@x.com", "secret1")
	s.Require().NoError(err)

	acct, err = s.env.repos.Accounts.GetByID(s.ctx, models.RoleBuyer, res.Account.ID)
	s.Require().NoError(err)
	s.Nil(acct.OTP)
	s.Nil(acct.OTPExpiry)
}

func (s *AccountServiceSuite) TestVerifyOTP() {
	res := s.register("a@x.com", "0211234567")

	acct, err := s.env.repos.Accounts.GetByID(s.ctx, models.RoleBuyer, res.Account.ID)
	s.Require().NoError(err)
	code := 4821
	expiry := s.env.clock.t.Add(10 * time.Minute)
	acct.OTP, acct.OTPExpiry = &code, &expiry
	s.Require().NoError(s.env.repos.Accounts.Update(s.ctx, acct))

	_, err = s.buyers.VerifyOTP(s.ctx, "a@x.com", "1234")
	s.ErrorIs(err, ErrInvalidCode)

	_, err = s.buyers.VerifyOTP(s.ctx, "a@x.com", "abcd")
	s.ErrorIs(err, ErrInvalidCode)

	_, err = s.buyers.VerifyOTP(s.ctx, "a@x.com", "")
	s.ErrorIs(err, ErrBadRequest)

	_, err = s.buyers.VerifyOTP(s.ctx, "nobody@x.com", "4821")
	s.ErrorIs(err, ErrNotFound)

	s.env.clock.t = s.env.clock.t.Add(5 * time.Minute)
	out, err := s.buyers.VerifyOTP(s.ctx, "a@x.com", "4821")
	s.Require().NoError(err)
	s.NotEmpty(out.Token)
	s.True(out.Account.Verified)

	stored, err := s.env.repos.Accounts.GetByID(s.ctx, models.RoleBuyer, res.Account.ID)
	s.Require().NoError(err)
	s.True(stored.Verified)
	s.Nil(stored.OTP)

	_, err = s.buyers.VerifyOTP(s.ctx, "a@x.com", "4821")
	s.ErrorIs(err, ErrAlreadyVerified)
}

func (s *AccountServiceSuite) TestVerifyOTPExpired() {
	s.register("a@x.com", "0211234567")
	code := s.env.mail.last().Code

	s.env.clock.t = s.env.clock.t.Add(11 * time.Minute)
	_, err := s.buyers.VerifyOTP(s.ctx, "a@x.com", strconv.Itoa(code))
	s.ErrorIs(err, ErrExpired)
}

func (s *AccountServiceSuite) TestResendOTP() {
	s.register("a@x.com", "0211234567")
	first := s.env.mail.last().Code

	s.env.clock.t = s.env.clock.t.Add(11 * time.Minute)
	s.Require().NoError(s.buyers.ResendOTP(s.ctx, "a@x.com"))
	second := s.env.mail.last().Code

	_, err := s.buyers.VerifyOTP(s.ctx, "a@x.com", strconv.Itoa(second))
	s.Require().NoError(err, "first code was %d", first)

	err = s.buyers.ResendOTP(s.ctx, "a@x.com")
	s.ErrorIs(err, ErrAlreadyVerified)

	err = s.buyers.ResendOTP(s.ctx, "nobody@x.com")
	s.ErrorIs(err, ErrNotFound)
}

func (s *AccountServiceSuite) TestResendOTPMailFailure() {
	s.register("a@x.com", "0211234567")
	s.env.mail.err = errors.New("provider down")

	err := s.buyers.ResendOTP(s.ctx, "a@x.com")
	s.Require().Error(err)
	s.NotErrorIs(err, ErrBadRequest)
}

func (s *AccountServiceSuite) TestOTPRateLimit() {
	s.env.deps.Limiter = ratelimit.NewMemory(3, time.Hour)
	s.buyers = s.env.accounts(models.RoleBuyer)
	s.register("a@x.com", "0211234567")

	for i := 0; i < 3; i++ {
		_, err := s.buyers.VerifyOTP(s.ctx, "a@x.com", "0")
		s.ErrorIs(err, ErrInvalidCode)
	}
	_, err := s.buyers.VerifyOTP(s.ctx, "a@x.com", "0")
	s.ErrorIs(err, ErrRateLimited)

	err = s.buyers.ResendOTP(s.ctx, "a@x.com")
	s.ErrorIs(err, ErrRateLimited)
}

func (s *AccountServiceSuite) TestUpdateProfile() {
	riders := s.env.accounts(models.RoleDelivery)
	res, err := riders.Register(s.ctx, models.RegisterRequest{
		Name: "Rae", Email: "r@x.com", Password: "secret1", Phone: "0211234567", Location: "CBD",
	}, nil)
	s.Require().NoError(err)
	riders.Wait()

	name := "Rae Rider"
	status := models.RiderAvailable
	out, err := riders.UpdateProfile(s.ctx, res.Account.ID, models.ProfileUpdateRequest{
		Name: &name, Status: &status,
	}, pngBytes())
	s.Require().NoError(err)
	s.Equal("Rae Rider", out.Name)
	s.Equal(models.RiderAvailable, out.Profile.Delivery.Status)
	s.Equal("CBD", out.Profile.Delivery.Location)
	s.Equal("/uploads/deliveries/img1.jpg", out.Image)

	// replacing the picture removes the old one
	out, err = riders.UpdateProfile(s.ctx, res.Account.ID, models.ProfileUpdateRequest{}, pngBytes())
	s.Require().NoError(err)
	s.Equal("/uploads/deliveries/img2.jpg", out.Image)
	s.Equal(map[string]bool{"/uploads/deliveries/img2.jpg": true}, s.env.images.stored)

	blank := "  "
	_, err = riders.UpdateProfile(s.ctx, res.Account.ID, models.ProfileUpdateRequest{Name: &blank}, nil)
	s.ErrorIs(err, ErrBadRequest)

	_, err = riders.UpdateProfile(s.ctx, "missing", models.ProfileUpdateRequest{Name: &name}, nil)
	s.ErrorIs(err, ErrNotFound)
}

func (s *AccountServiceSuite) TestUpdateProfilePhoneConflict() {
	s.register("a@x.com", "0211111111")
	res := s.register("b@x.com", "0212222222")

	phone := "0211111111"
	_, err := s.buyers.UpdateProfile(s.ctx, res.Account.ID, models.ProfileUpdateRequest{Phone: &phone}, pngBytes())
	s.ErrorIs(err, ErrConflict)
	s.Empty(s.env.images.stored, "the rejected upload is removed")
}

func (s *AccountServiceSuite) TestProfile() {
	res := s.register("a@x.com", "0211234567")

	acct, err := s.buyers.Profile(s.ctx, res.Account.ID)
	s.Require().NoError(err)
	s.Equal("a@x.com", acct.Email)

	_, err = s.buyers.Profile(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func TestAccountServiceSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func TestVerifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.verified(t, models.RoleVendor, "v@x.com", "0211234567")

	_, err := verifiedAccount(ctx, env.repos.Accounts, models.RoleVendor, id)
	require.NoError(t, err)

	_, err = verifiedAccount(ctx, env.repos.Accounts, models.RoleVendor, "missing")
	require.ErrorIs(t, err, ErrUnauthorized)

	buyers := env.accounts(models.RoleBuyer)
	res, err := buyers.Register(ctx, models.RegisterRequest{
		Name: "Ada", Email: "a@x.com", Password: "secret1", Phone: "0211234567",
	}, nil)
	require.NoError(t, err)
	buyers.Wait()

	_, err = verifiedAccount(ctx, env.repos.Accounts, models.RoleBuyer, res.Account.ID)
	require.ErrorIs(t, err, ErrNotVerified)
}
