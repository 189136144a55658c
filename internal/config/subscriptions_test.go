package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSubscriptions_EmptyPath(t *testing.T) {
	subs, err := LoadSubscriptions("")
	require.NoError(t, err)
	assert.Nil(t, subs)
}

func TestLoadSubscriptions_Manifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subscriptions:
  - channel: trades
    symbol: BTCUSD
  - channel: book
    symbol: ETHUSD
`), 0o644))

	subs, err := LoadSubscriptions(path)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, Subscription{Channel: "trades", Symbol: "BTCUSD"}, subs[0])
	assert.Equal(t, Subscription{Channel: "book", Symbol: "ETHUSD"}, subs[1])
}

func TestLoadSubscriptions_MissingFile(t *testing.T) {
	_, err := LoadSubscriptions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadSubscriptions_EmptyChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subscriptions:
  - channel: ""
    symbol: BTCUSD
`), 0o644))

	_, err := LoadSubscriptions(path)
	assert.ErrorContains(t, err, "channel cannot be empty")
}

func TestLoadSubscriptions_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subscriptions: {not: [valid"), 0o644))

	_, err := LoadSubscriptions(path)
	assert.Error(t, err)
}
