package models

import "time"

// KeyIDLength is the number of leading key characters stored in clear as
// the lookup id.
const KeyIDLength = 8

// APIKey maps a credential to the portal it acts for. Only a bcrypt hash
// of the key is stored.
type APIKey struct {
	KeyID         string    `json:"keyId"`
	KeyHash       string    `json:"-"`
	PortalAddress string    `json:"portalAddress"`
	CreatedAt     time.Time `json:"createdAt"`
}

// KeyIDOf returns the lookup id for key.
func KeyIDOf(key string) string {
	if len(key) <= KeyIDLength {
		return key
	}
	return key[:KeyIDLength]
}
