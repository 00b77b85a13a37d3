package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_RequiresAdmin(t *testing.T) {
	t.Setenv("ADMIN_ID", "")
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ADMIN_ID", "77")
	t.Setenv("QUOTA_LIMIT", "3")
	t.Setenv("QUOTA_WINDOW", "30m")
	t.Setenv("NEXT_COOLDOWN", "2s")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("NATS_URL", "nats://example:4222")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(77), cfg.Chat.ModeratorID)
	assert.Equal(t, 3, cfg.Quota.Limit)
	assert.Equal(t, 30*time.Minute, cfg.Quota.Window)
	assert.Equal(t, 2*time.Second, cfg.Chat.NextRule.Cooldown)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.True(t, cfg.NATSEnabled)
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	t.Setenv("ADMIN_ID", "77")

	t.Run("backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "mongo")
		_, err := loadConfig()
		assert.Error(t, err)
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("QUOTA_WINDOW", "soon")
		_, err := loadConfig()
		assert.Error(t, err)
	})
	t.Run("limit", func(t *testing.T) {
		t.Setenv("QUOTA_LIMIT", "-1")
		_, err := loadConfig()
		assert.Error(t, err)
	})
}
