package entity

import (
	"fmt"
	"strings"
)

const (
	DefaultBaseUrl    = "https://apipagosbg.bgeneral.cloud"
	DefaultDeviceName = "POS"
	DefaultDeviceUser = "cashier"
)

// Credentials identify the merchant device against the Yappy API.
// A flow works on its own copy, values never change while a payment is running.
type Credentials struct {
	ApiKey     string `json:"api_key" bson:"api_key"`
	SecretKey  string `json:"secret_key" bson:"secret_key"`
	DeviceId   string `json:"device_id" bson:"device_id"`
	DeviceName string `json:"device_name" bson:"device_name"`
	DeviceUser string `json:"device_user" bson:"device_user"`
	GroupId    string `json:"group_id" bson:"group_id"`
	BaseUrl    string `json:"base_url" bson:"base_url"`
}

// Validate checks that all required values are present.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ApiKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		missing = append(missing, "secret_key")
	}
	if strings.TrimSpace(c.DeviceId) == "" {
		missing = append(missing, "device_id")
	}
	if strings.TrimSpace(c.GroupId) == "" {
		missing = append(missing, "group_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// WithDefaults returns a copy with optional values filled in.
func (c Credentials) WithDefaults() Credentials {
	if strings.TrimSpace(c.DeviceName) == "" {
		c.DeviceName = DefaultDeviceName
	}
	if strings.TrimSpace(c.DeviceUser) == "" {
		c.DeviceUser = DefaultDeviceUser
	}
	if strings.TrimSpace(c.BaseUrl) == "" {
		c.BaseUrl = DefaultBaseUrl
	}
	c.BaseUrl = strings.TrimRight(c.BaseUrl, "/")
	return c
}
