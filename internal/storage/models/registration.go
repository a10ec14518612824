package models

import (
	"time"
)

// RegistrationStatus is the device registration lifecycle state.
type RegistrationStatus string

// Registration statuses.
const (
	RegistrationUnregistered  RegistrationStatus = "unregistered"
	RegistrationRegistering   RegistrationStatus = "registering"
	RegistrationRegistered    RegistrationStatus = "registered"
	RegistrationUnregistering RegistrationStatus = "unregistering"
	RegistrationError         RegistrationStatus = "error"
)

// Registration is the device's push-channel identity.
type Registration struct {
	DeviceID  string             `json:"device_id,omitempty"`
	Account   string             `json:"account,omitempty"`
	PushToken string             `json:"-"`
	Status    RegistrationStatus `json:"status"`
	LastError *string            `json:"last_error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// IsRegistered reports whether a server-side identity exists.
func (r *Registration) IsRegistered() bool {
	return r != nil && r.Status == RegistrationRegistered && r.DeviceID != ""
}
