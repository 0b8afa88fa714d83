package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// MenuItem is a dish offered by exactly one vendor
type MenuItem struct {
	ID          string     `bson:"_id" db:"id" json:"id"`
	VendorID    string     `bson:"vendor" db:"vendor_id" json:"vendor"`
	Name        string     `bson:"foodname" db:"name" json:"foodname"`
	Description string     `bson:"description" db:"description" json:"description"`
	Category    string     `bson:"category" db:"category" json:"category"`
	Price       int64      `bson:"price" db:"price" json:"price"` // minor currency units
	Ingredients StringList `bson:"ingredients" db:"ingredients" json:"ingredients"`
	Image       string     `bson:"image,omitempty" db:"image" json:"image,omitempty"`
	Available   bool       `bson:"available" db:"available" json:"available"`
	CreatedAt   time.Time  `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

// StringList is a list of strings stored as a JSON document column
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, (*[]string)(l))
}

// MenuItemRequest is used for menu item creation
type MenuItemRequest struct {
	Name        string   `json:"foodname" validate:"required,min=1,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Category    string   `json:"category" validate:"required,max=50"`
	Price       int64    `json:"price" validate:"required,gt=0"`
	Ingredients []string `json:"ingredients" validate:"max=50,dive,max=100"`
	VendorID    string   `json:"vendor"`
	Available   *bool    `json:"available"`
}

// MenuItemUpdateRequest carries only the fields to change
type MenuItemUpdateRequest struct {
	Name        *string   `json:"foodname" validate:"omitempty,min=1,max=100"`
	Description *string   `json:"description" validate:"omitempty,max=1000"`
	Category    *string   `json:"category" validate:"omitempty,max=50"`
	Price       *int64    `json:"price" validate:"omitempty,gt=0"`
	Ingredients *[]string `json:"ingredients" validate:"omitempty,max=50"`
	Available   *bool     `json:"available"`
}
