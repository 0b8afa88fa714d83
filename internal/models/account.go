package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Role identifies which actor an account belongs to
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleBuyer    Role = "buyer"
	RoleVendor   Role = "vendor"
	RoleDelivery Role = "delivery"
)

// Roles lists every account role in route registration order
func Roles() []Role {
	return []Role{RoleAdmin, RoleBuyer, RoleVendor, RoleDelivery}
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBuyer, RoleVendor, RoleDelivery:
		return true
	}
	return false
}

// Collection is the per-role document collection name
func (r Role) Collection() string {
	switch r {
	case RoleAdmin:
		return "admins"
	case RoleBuyer:
		return "buyers"
	case RoleVendor:
		return "vendors"
	case RoleDelivery:
		return "deliveries"
	}
	return ""
}

// Account is the stored credential and profile record of any role.
// PasswordHash and the pending OTP are never serialized.
type Account struct {
	ID           string     `bson:"_id" db:"id" json:"id"`
	Role         Role       `bson:"role" db:"role" json:"role"`
	Name         string     `bson:"name" db:"name" json:"name"`
	Email        string     `bson:"email" db:"email" json:"email"`
	Phone        string     `bson:"phone" db:"phone" json:"phone"`
	PasswordHash string     `bson:"passwordHash" db:"password_hash" json:"-"`
	OTP          *int       `bson:"otp" db:"otp" json:"-"`
	OTPExpiry    *time.Time `bson:"otpExpiry" db:"otp_expiry" json:"-"`
	Verified     bool       `bson:"verified" db:"verified" json:"verified"`
	Image        string     `bson:"image,omitempty" db:"image" json:"image,omitempty"`
	Profile      Profile    `bson:"profile" db:"profile" json:"profile"`
	CreatedAt    time.Time  `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

// Profile holds the role-specific attributes; only the sub-document matching
// the account role is set.
type Profile struct {
	Vendor   *VendorProfile   `bson:"vendor,omitempty" json:"vendor,omitempty"`
	Delivery *DeliveryProfile `bson:"delivery,omitempty" json:"delivery,omitempty"`
	Buyer    *BuyerProfile    `bson:"buyer,omitempty" json:"buyer,omitempty"`
}

type VendorProfile struct {
	OpeningHours   string  `bson:"openingHours" json:"openingHours"`
	Cuisine        string  `bson:"cuisine" json:"cuisine"`
	Address        string  `bson:"address" json:"address"`
	CommissionRate float64 `bson:"commissionRate" json:"commissionRate"`
	Earnings       int64   `bson:"earnings" json:"earnings"`
	Rating         float64 `bson:"rating" json:"rating"`
}

// Delivery rider availability
const (
	RiderAvailable = "available"
	RiderOffline   = "offline"
)

type DeliveryProfile struct {
	Location string  `bson:"location" json:"location"`
	Status   string  `bson:"status" json:"status"`
	Earnings int64   `bson:"earnings" json:"earnings"`
	Rating   float64 `bson:"rating" json:"rating"`
}

type BuyerProfile struct {
	WalletBalance int64     `bson:"walletBalance" json:"walletBalance"`
	Payments      []Payment `bson:"payments" json:"payments"`
}

type Payment struct {
	OrderID string    `bson:"orderId" json:"orderId"`
	Amount  int64     `bson:"amount" json:"amount"`
	PaidAt  time.Time `bson:"paidAt" json:"paidAt"`
}

// DefaultCommissionRate is applied to newly registered vendors
const DefaultCommissionRate = 0.1

// NewProfile returns the empty profile for a role
func NewProfile(role Role) Profile {
	switch role {
	case RoleVendor:
		return Profile{Vendor: &VendorProfile{CommissionRate: DefaultCommissionRate}}
	case RoleDelivery:
		return Profile{Delivery: &DeliveryProfile{Status: RiderOffline}}
	case RoleBuyer:
		return Profile{Buyer: &BuyerProfile{Payments: []Payment{}}}
	}
	return Profile{}
}

// Value stores the profile as a JSON document column
func (p Profile) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan reads the profile from a JSON document column
func (p *Profile) Scan(src any) error {
	return scanJSON(src, p)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return errors.New("unsupported JSON column type")
}

// RegisterRequest is the registration form of every role. Role-specific
// fields are ignored for roles that do not use them.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" validate:"required,min=7,max=20"`

	OpeningHours string `json:"openingHours" validate:"max=100"`
	Cuisine      string `json:"cuisine" validate:"max=100"`
	Address      string `json:"address" validate:"max=200"`
	Location     string `json:"location" validate:"max=200"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// VerifyOTPRequest accepts the code as a JSON number or a numeric string
type VerifyOTPRequest struct {
	Email string      `json:"email" validate:"required"`
	OTP   json.Number `json:"OTP" validate:"required"`
}

type ResendOTPRequest struct {
	Email string `json:"email" validate:"required"`
}

// ProfileUpdateRequest carries only the fields the caller wants to change
type ProfileUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone *string `json:"phone" validate:"omitempty,min=7,max=20"`

	OpeningHours *string `json:"openingHours" validate:"omitempty,max=100"`
	Cuisine      *string `json:"cuisine" validate:"omitempty,max=100"`
	Address      *string `json:"address" validate:"omitempty,max=200"`
	Location     *string `json:"location" validate:"omitempty,max=200"`
	Status       *string `json:"status" validate:"omitempty,oneof=available offline"`
}
