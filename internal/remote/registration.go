package remote

import (
	"context"
	"net/http"
)

// DeviceRegistration identifies a device and its push-channel token.
type DeviceRegistration struct {
	DeviceID  string `json:"deviceId"`
	Account   string `json:"account,omitempty"`
	PushToken string `json:"pushChannelToken"`
}

// Register records the device with the registration endpoint. A refusal is a
// *TransportError whose Reason carries the server's explanation.
func (c *Client) Register(ctx context.Context, reg DeviceRegistration) error {
	_, err := c.do(ctx, http.MethodPost, c.opts.RegistrationURL, reg)
	return err
}

// Unregister removes the device from the registration endpoint.
func (c *Client) Unregister(ctx context.Context, reg DeviceRegistration) error {
	_, err := c.do(ctx, http.MethodDelete, c.opts.RegistrationURL, reg)
	return err
}
