package domain

import "time"

// PaymentMethod referencia una tarjeta tokenizada por el gateway; nunca guarda el PAN.
type PaymentMethod struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	GatewayToken string     `json:"-"`
	Brand        string     `json:"brand"`
	LastFour     string     `json:"lastFour"`
	ExpMonth     int        `json:"expMonth"`
	ExpYear      int        `json:"expYear"`
	IsDefault    bool       `json:"isDefault"`
	IsActive     bool       `json:"-"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsExpired considera la tarjeta valida hasta el ultimo dia de su mes de vencimiento.
func (p PaymentMethod) IsExpired(now time.Time) bool {
	return CardExpired(p.ExpMonth, p.ExpYear, now)
}

func CardExpired(month, year int, now time.Time) bool {
	firstInvalid := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.UTC().Before(firstInvalid)
}
