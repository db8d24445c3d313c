package types

import "strings"

// Address is the snapshot stored with an order (jsonb column).
type Address struct {
	FullName   string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region,omitempty" validate:"omitempty,max=100"`
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

// NormalizedCountry returns the upper-cased ISO country code.
func (a Address) NormalizedCountry() string {
	return strings.ToUpper(strings.TrimSpace(a.Country))
}
