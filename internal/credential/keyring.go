package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "tg-redmine"

// Keys of the secrets the bridge needs at startup. They are consulted
// when the corresponding config values are empty.
const (
	KeyBotToken      = "telegram-bot-token"
	KeyRedmineAPIKey = "redmine-api-key"
	KeyTrackerDSN    = "tracker-dsn"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/tg-redmine/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("tg-redmine-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Fallback returns value unchanged when non-empty, otherwise looks the
// secret up in the keyring.
func Fallback(value, key string) (string, error) {
	if value != "" {
		return value, nil
	}
	return Get(key)
}
