package domain

import "time"

// OTPRecord es el codigo de un solo uso vigente para un numero movil.
type OTPRecord struct {
	MobileNumber string    `json:"mobileNumber"`
	CodeHash     string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Verified     bool      `json:"verified"`
	Attempts     int       `json:"attempts"`
	LastSentAt   time.Time `json:"lastSentAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (r OTPRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// OTPIssue resume el resultado de un envio de OTP para el cliente.
type OTPIssue struct {
	MobileNumber string        `json:"-"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	ExpiresIn    time.Duration `json:"-"`
	ResendAfter  time.Duration `json:"-"`
	Delivered    bool          `json:"delivered"`
}
