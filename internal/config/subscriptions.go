package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Subscription describes one channel the process subscribes to once a
// session is live. The set is replayed after every reconnect.
type Subscription struct {
	Channel string `yaml:"channel" json:"channel"`
	Symbol  string `yaml:"symbol" json:"symbol"`
}

// subscriptionManifest is the on-disk layout of the subscriptions file.
type subscriptionManifest struct {
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// LoadSubscriptions reads the subscription manifest. An empty path
// means no static subscriptions.
func LoadSubscriptions(path string) ([]Subscription, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}

	var manifest subscriptionManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions file: %w", err)
	}

	for i, sub := range manifest.Subscriptions {
		if sub.Channel == "" {
			return nil, fmt.Errorf("subscription %d: channel cannot be empty", i)
		}
	}

	return manifest.Subscriptions, nil
}
