package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/uptrace/bun"
)

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

func ParseUserStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case UserActive, UserInactive, UserSuspended:
		return UserStatus(s), nil
	}
	return "", fmt.Errorf("unknown user status %q", s)
}

// PostalCodePattern matches the single supported postal format (e.g. 150-0001 or 1500001).
var PostalCodePattern = regexp.MustCompile(`^[0-9]{3}-?[0-9]{4}$`)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string     `bun:"id,pk" json:"id"`
	Email       string     `bun:"email,unique,notnull" json:"email"`
	Name        string     `bun:"name,notnull" json:"name"`
	PostalCode  string     `bun:"postal_code,nullzero" json:"postal_code,omitempty"`
	PrefCode    string     `bun:"pref_code,nullzero" json:"pref_code,omitempty"`
	PrefName    string     `bun:"pref_name,nullzero" json:"pref_name,omitempty"`
	PrefKana    string     `bun:"pref_kana,nullzero" json:"pref_kana,omitempty"`
	City        string     `bun:"city,nullzero" json:"city,omitempty"`
	CityKana    string     `bun:"city_kana,nullzero" json:"city_kana,omitempty"`
	AddressLine string     `bun:"address_line,nullzero" json:"address_line,omitempty"`
	Phone       string     `bun:"phone,nullzero" json:"phone,omitempty"`
	Status      UserStatus `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// ShippingAddress is the document snapshot frozen onto every order.
type ShippingAddress struct {
	Name        string `json:"name"`
	PostalCode  string `json:"postal_code"`
	PrefCode    string `json:"pref_code,omitempty"`
	PrefName    string `json:"pref_name"`
	PrefKana    string `json:"pref_kana,omitempty"`
	City        string `json:"city"`
	CityKana    string `json:"city_kana,omitempty"`
	AddressLine string `json:"address_line"`
	Phone       string `json:"phone,omitempty"`
}

// Validate checks the minimum fields every shipping snapshot must carry.
func (a ShippingAddress) Validate() error {
	if !PostalCodePattern.MatchString(a.PostalCode) {
		return fmt.Errorf("invalid postal code %q", a.PostalCode)
	}
	if a.PrefName == "" {
		return fmt.Errorf("prefecture name is required")
	}
	if a.City == "" {
		return fmt.Errorf("city is required")
	}
	if a.AddressLine == "" {
		return fmt.Errorf("address line is required")
	}
	return nil
}
