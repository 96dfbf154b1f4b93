package domain

import "time"

type User struct {
	ID                      string          `json:"id"`
	MobileNumber            string          `json:"mobileNumber"`
	Name                    string          `json:"name,omitempty"`
	Email                   string          `json:"email,omitempty"`
	IsVerified              bool            `json:"isVerified"`
	VerifiedAt              *time.Time      `json:"verifiedAt,omitempty"`
	NotificationPreferences map[string]bool `json:"notificationPreferences"`
	Avatar                  string          `json:"avatar,omitempty"`
	PrimaryAddressID        string          `json:"primaryAddressId,omitempty"`
	DeviceTokens            []string        `json:"-"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

// ProfileUpdate agrupa los cambios parciales de perfil; nil significa "sin cambios".
type ProfileUpdate struct {
	Name                    *string
	Email                   *string
	Avatar                  *string
	PrimaryAddressID        *string
	NotificationPreferences map[string]bool
}

// DefaultNotificationPreferences son las preferencias de un usuario recien creado.
func DefaultNotificationPreferences() map[string]bool {
	return map[string]bool{
		"orderUpdates": true,
		"offers":       true,
		"sms":          true,
		"push":         true,
	}
}
