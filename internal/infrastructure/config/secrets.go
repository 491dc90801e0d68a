package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service credentials are stored under.
const KeyringService = "entstore"

// keyringPrefix marks a credential stored in the OS keyring rather than in
// the file, e.g. password: "keyring:mqtt" reads entry "mqtt" of KeyringService.
const keyringPrefix = "keyring:"

// ErrSecretUnavailable is returned when a keyring reference cannot be resolved.
var ErrSecretUnavailable = errors.New("config: keyring secret unavailable")

// ResolveSecrets replaces keyring references in the MQTT password and the
// InfluxDB token with the stored values. Disabled integrations are skipped.
func (c *Config) ResolveSecrets() error {
	if c.MQTT.Enabled {
		secret, err := resolveSecret(c.MQTT.Auth.Password)
		if err != nil {
			return fmt.Errorf("mqtt.auth.password: %w", err)
		}
		c.MQTT.Auth.Password = secret
	}
	if c.InfluxDB.Enabled {
		secret, err := resolveSecret(c.InfluxDB.Token)
		if err != nil {
			return fmt.Errorf("influxdb.token: %w", err)
		}
		c.InfluxDB.Token = secret
	}
	return nil
}

func resolveSecret(value string) (string, error) {
	entry, ok := strings.CutPrefix(value, keyringPrefix)
	if !ok {
		return value, nil
	}
	if entry == "" {
		return "", fmt.Errorf("%w: reference %q names no entry", ErrSecretUnavailable, value)
	}

	secret, err := keyring.Get(KeyringService, entry)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: no entry %q in service %q", ErrSecretUnavailable, entry, KeyringService)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}
	return secret, nil
}
