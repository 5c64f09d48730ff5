package entity

// RemoteConfigRequest is posted to the remote configuration endpoint.
type RemoteConfigRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// EncryptedConfig is returned when the endpoint encrypts the payload.
// EncryptedData is AES/ECB/PKCS5 ciphertext encoded as base64url.
type EncryptedConfig struct {
	EncryptedData string `json:"encrypted_data"`
	EncryptionKey string `json:"encryption_key"`
}

// IsEncrypted reports whether the response carried an encrypted payload.
func (e *EncryptedConfig) IsEncrypted() bool {
	return e.EncryptedData != "" && e.EncryptionKey != ""
}

type RemoteConfigBody struct {
	Device  Device `json:"device"`
	GroupId string `json:"group_id"`
}

type RemoteConfigKeys struct {
	Endpoint  string `json:"endpoint"`
	ApiKey    string `json:"api-key"`
	SecretKey string `json:"secret-key"`
}

// RemoteConfig is the decrypted (or plain) configuration payload.
type RemoteConfig struct {
	Body   RemoteConfigBody `json:"body"`
	Config RemoteConfigKeys `json:"config"`
}

// Credentials converts the payload to credentials with defaults applied.
func (c *RemoteConfig) Credentials() Credentials {
	return Credentials{
		ApiKey:     c.Config.ApiKey,
		SecretKey:  c.Config.SecretKey,
		DeviceId:   c.Body.Device.Id,
		DeviceName: c.Body.Device.Name,
		DeviceUser: c.Body.Device.User,
		GroupId:    c.Body.GroupId,
		BaseUrl:    c.Config.Endpoint,
	}.WithDefaults()
}
