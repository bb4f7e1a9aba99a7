package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringKV stores values in the operating system keychain under one service name.
// The keychain API is synchronous and ignores ctx.
type KeyringKV struct {
	service string
}

// NewKeyringKV creates a KeyringKV for service.
func NewKeyringKV(service string) *KeyringKV {
	return &KeyringKV{service: service}
}

func (k *KeyringKV) Get(_ context.Context, key string) (string, bool, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: keyring get %q: %w", key, err)
	}
	return v, true, nil
}

func (k *KeyringKV) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("credstore: keyring set %q: %w", key, err)
	}
	return nil
}

func (k *KeyringKV) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credstore: keyring delete %q: %w", key, err)
	}
	return nil
}
