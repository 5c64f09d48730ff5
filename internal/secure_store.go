package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"yappy/config"
	"yappy/entity"
	"yappy/services"
)

const (
	keyCredentials  = "yappy.credentials"
	keySessionToken = "yappy.session"
)

// SecureStore is a key-value store that keeps values encrypted at rest.
type SecureStore struct {
	backend   services.KeyValue
	encryptor *Encryptor
}

func NewSecureStore(backend services.KeyValue, encryptor *Encryptor) *SecureStore {
	return &SecureStore{backend: backend, encryptor: encryptor}
}

// Get returns ErrNotFound when the key was never set.
func (s *SecureStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.backend.GetValue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if sealed == nil {
		return nil, ErrNotFound
	}
	return s.encryptor.Open(sealed)
}

func (s *SecureStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.encryptor.Seal(value)
	if err != nil {
		return err
	}
	if err = s.backend.SetValue(ctx, key, sealed); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SecureStore) Delete(ctx context.Context, key string) error {
	return s.backend.DeleteValue(ctx, key)
}

// CredentialsStore resolves provider credentials: stored values first,
// static configuration second.
type CredentialsStore struct {
	store  *SecureStore
	static entity.Credentials
	logger services.LogHandler
}

func NewCredentialsStore(store *SecureStore, conf *config.Config, logger services.LogHandler) *CredentialsStore {
	return &CredentialsStore{
		store:  store,
		static: StaticCredentials(conf),
		logger: logger,
	}
}

// StaticCredentials reads the credentials section of the configuration.
func StaticCredentials(conf *config.Config) entity.Credentials {
	if conf == nil {
		return entity.Credentials{}
	}
	return entity.Credentials{
		ApiKey:     conf.Yappy.ApiKey,
		SecretKey:  conf.Yappy.SecretKey,
		DeviceId:   conf.Yappy.DeviceId,
		DeviceName: conf.Yappy.DeviceName,
		DeviceUser: conf.Yappy.DeviceUser,
		GroupId:    conf.Yappy.GroupId,
		BaseUrl:    conf.Yappy.BaseUrl,
	}
}

// Load returns the stored credentials or ErrNotFound.
func (c *CredentialsStore) Load(ctx context.Context) (entity.Credentials, error) {
	var credentials entity.Credentials
	data, err := c.store.Get(ctx, keyCredentials)
	if err != nil {
		return credentials, err
	}
	if err = json.Unmarshal(data, &credentials); err != nil {
		return credentials, fmt.Errorf("decode credentials: %w", err)
	}
	return credentials, nil
}

// Save validates and stores credentials.
func (c *CredentialsStore) Save(ctx context.Context, credentials entity.Credentials) error {
	if err := credentials.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	data, err := json.Marshal(credentials.WithDefaults())
	if err != nil {
		return err
	}
	if err = c.store.Set(ctx, keyCredentials, data); err != nil {
		return err
	}
	c.logger.Info(fmt.Sprintf("credentials saved for device %s", secret(credentials.DeviceId)))
	return nil
}

func (c *CredentialsStore) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, keyCredentials)
}

// Resolve returns the first valid credentials: stored, then static.
func (c *CredentialsStore) Resolve(ctx context.Context) (entity.Credentials, error) {
	stored, err := c.Load(ctx)
	if err == nil {
		e := stored.Validate()
		if e == nil {
			return stored.WithDefaults(), nil
		}
		c.logger.Warn(fmt.Sprintf("stored credentials ignored: %v", e))
	} else if !errors.Is(err, ErrNotFound) {
		c.logger.Error("load stored credentials", err)
	}
	if err = c.static.Validate(); err == nil {
		return c.static.WithDefaults(), nil
	}
	return entity.Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
}

func (c *CredentialsStore) LastToken(ctx context.Context) (string, error) {
	data, err := c.store.Get(ctx, keySessionToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *CredentialsStore) RememberToken(ctx context.Context, token string) error {
	return c.store.Set(ctx, keySessionToken, []byte(token))
}

// ForgetToken removes the token if it is still the remembered one.
func (c *CredentialsStore) ForgetToken(ctx context.Context, token string) error {
	last, err := c.LastToken(ctx)
	if err != nil {
		return err
	}
	if last != token {
		return nil
	}
	return c.store.Delete(ctx, keySessionToken)
}

// MemoryKeyValue is an in-process backend, used when MongoDB is disabled.
type MemoryKeyValue struct {
	mutex  sync.RWMutex
	values map[string][]byte
}

func NewMemoryKeyValue() *MemoryKeyValue {
	return &MemoryKeyValue{values: make(map[string][]byte)}
}

func (m *MemoryKeyValue) GetValue(_ context.Context, key string) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryKeyValue) SetValue(_ context.Context, key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKeyValue) DeleteValue(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.values, key)
	return nil
}
