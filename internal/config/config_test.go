package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetConnectionString(t *testing.T) {
	p := PostgresConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "quiz",
		Password: "secret",
		Database: "quizdb",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db.internal port=5432 user=quiz password=secret dbname=quizdb sslmode=disable", p.GetConnectionString())
}

func TestGetAddr(t *testing.T) {
	r := RedisConfig{Host: "cache.internal", Port: 6379}
	assert.Equal(t, "cache.internal:6379", r.GetAddr())
}

func TestSessionTTL(t *testing.T) {
	s := SessionConfig{TTLHours: 6}
	assert.Equal(t, 6*time.Hour, s.TTL())
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, 6, cfg.Session.TTLHours)
	assert.Equal(t, 20, cfg.Session.DefaultQuestionSeconds)
}

func TestLoadRespectsEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	assert.Equal(t, 9090, cfg.Server.Port)
}
