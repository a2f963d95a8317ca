package remoteapi

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Device is a registered client device, used for last_edit_device
// attribution and for the user to review/revoke access.
type Device struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RegisterDevice announces this device to the server and returns its
// server-assigned ID.
func (c *Client) RegisterDevice(ctx context.Context, token, name string) (Device, error) {
	var dev Device
	body := map[string]string{"name": name}
	_, err := c.do(ctx, http.MethodPost, "/devices/register", token, nil, body, &dev)
	return dev, err
}

// ListDevices lists every device registered for the account.
func (c *Client) ListDevices(ctx context.Context, token string) ([]Device, error) {
	var devices []Device
	_, err := c.do(ctx, http.MethodGet, "/devices", token, nil, nil, &devices)
	return devices, err
}

// RevokeDevice removes a device's registration.
func (c *Client) RevokeDevice(ctx context.Context, token, deviceID string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/devices/%s", deviceID), token, nil, nil, nil)
	return err
}
