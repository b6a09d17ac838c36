package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 7*24*time.Hour, cfg.Retention.MessageTTL)
	assert.Equal(t, 9, cfg.Moderation.SevereThreshold)
	assert.Equal(t, 5, cfg.Moderation.ModerateThreshold)
	assert.Equal(t, "keyword", cfg.Realtime.ClassifierKind)
	assert.Empty(t, cfg.Moderation.CounsellorDirectory)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MESSAGE_TTL", "48h")
	t.Setenv("GATEWAY_CLASSIFIER", "lexicon")
	t.Setenv("COUNSELLOR_DIRECTORY", "INST1=C1, INST2=C2,broken,=x")
	t.Setenv("WS_MESSAGES_PER_SEC", "2.5")

	cfg := Load()

	assert.Equal(t, 48*time.Hour, cfg.Retention.MessageTTL)
	assert.Equal(t, "lexicon", cfg.Realtime.ClassifierKind)
	assert.Equal(t, map[string]string{"INST1": "C1", "INST2": "C2"}, cfg.Moderation.CounsellorDirectory)
	assert.Equal(t, 2.5, cfg.Realtime.MessagesPerSec)
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	cfg := Load()
	cfg.Database.Driver = "oracle"

	_, err := dialectorFor(cfg)
	assert.Error(t, err)
}
