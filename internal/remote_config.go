package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-resty/resty/v2"
	"time"
	"yappy/config"
	"yappy/entity"
	"yappy/services"
)

// RemoteConfig loads provider credentials from the merchant configuration endpoint.
type RemoteConfig struct {
	client      *resty.Client
	url         string
	username    string
	password    string
	credentials *CredentialsStore
	logger      services.LogHandler
}

func NewRemoteConfig(conf *config.Config, credentials *CredentialsStore, logger services.LogHandler) *RemoteConfig {
	timeout := DefaultRequestTimeout
	if conf.Http.Timeout > 0 {
		timeout = conf.Http.Timeout
	}
	return &RemoteConfig{
		client:      newRestyClient(timeout),
		url:         conf.Remote.Url,
		username:    conf.Remote.Username,
		password:    conf.Remote.Password,
		credentials: credentials,
		logger:      logger,
	}
}

// Fetch requests the configuration and returns the credentials it carries.
func (r *RemoteConfig) Fetch(ctx context.Context) (entity.Credentials, error) {
	if r.url == "" {
		return entity.Credentials{}, &ValidationError{Reason: "remote config url not set"}
	}
	request := entity.RemoteConfigRequest{
		Username: r.username,
		Password: r.password,
	}
	response, err := r.client.R().
		SetContext(ctx).
		SetBody(request).
		Post(r.url)
	if err != nil {
		return entity.Credentials{}, &NetworkError{Op: "fetch config", Err: err}
	}
	body := response.Body()
	if !response.IsSuccess() {
		var envelope entity.ErrorResponse
		code := fmt.Sprintf("HTTP-%d", response.StatusCode())
		if json.Unmarshal(body, &envelope) == nil && envelope.ErrorCode() != "" {
			code = envelope.ErrorCode()
		}
		return entity.Credentials{}, newVendorError("fetch config", code, envelope.ErrorDescription(), response.StatusCode())
	}

	remote, err := r.parse(body)
	if err != nil {
		return entity.Credentials{}, err
	}
	credentials := remote.Credentials()
	if err = credentials.Validate(); err != nil {
		return entity.Credentials{}, &ValidationError{Reason: fmt.Sprintf("remote config: %v", err)}
	}
	r.logger.Info(fmt.Sprintf("remote config loaded: device %s; endpoint %s", secret(credentials.DeviceId), credentials.BaseUrl))
	return credentials, nil
}

func (r *RemoteConfig) parse(body []byte) (*entity.RemoteConfig, error) {
	var encrypted entity.EncryptedConfig
	if err := json.Unmarshal(body, &encrypted); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	payload := body
	if encrypted.IsEncrypted() {
		plainText, err := DecryptConfig(encrypted.EncryptedData, encrypted.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("config payload: %w", err)
		}
		r.logger.Debug("remote config payload decrypted")
		payload = plainText
	}
	var remote entity.RemoteConfig
	if err := json.Unmarshal(payload, &remote); err != nil {
		return nil, fmt.Errorf("parse config payload: %w", err)
	}
	return &remote, nil
}

// Refresh fetches the remote configuration and stores it. When the endpoint cannot be
// reached, the previously stored or static credentials are used instead.
func (r *RemoteConfig) Refresh(ctx context.Context) (entity.Credentials, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*DefaultRequestTimeout+5*time.Second)
	defer cancel()

	if r.url == "" {
		r.logger.Warn("remote config url not set, using stored credentials")
		return r.credentials.Resolve(ctx)
	}
	credentials, err := r.Fetch(ctx)
	if err == nil {
		if err = r.credentials.Save(ctx, credentials); err != nil {
			return entity.Credentials{}, fmt.Errorf("save remote config: %w", err)
		}
		return credentials, nil
	}

	var networkErr *NetworkError
	if !errors.As(err, &networkErr) {
		return entity.Credentials{}, err
	}
	r.logger.Warn(fmt.Sprintf("remote config unavailable, using fallback: %v", err))
	fallback, fallbackErr := r.credentials.Resolve(ctx)
	if fallbackErr != nil {
		return entity.Credentials{}, errors.Join(err, fallbackErr)
	}
	return fallback, nil
}
