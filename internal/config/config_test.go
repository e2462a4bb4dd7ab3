package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "GRACE_PERIOD_SEC", "TIMER_CADENCE_MS", "LOCK_DRIVER", "PREREQ_MAX_RETRIES", "AMQP_URL"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Mode != ModeOffline || c.HTTPAddr == "" {
		t.Fatalf("mode/addr defaults: %+v", c)
	}
	if c.GracePeriod != 5*time.Second || c.TimerCadence != time.Second {
		t.Fatalf("timing defaults: grace=%s cadence=%s", c.GracePeriod, c.TimerCadence)
	}
	if c.LockDriver != "local" || c.PrereqMaxRetries != 3 || c.AMQPURL != "" {
		t.Fatalf("collaborator defaults: %+v", c)
	}
	if len(c.CORSOrigins()) != 3 {
		t.Fatalf("offline origins = %v", c.CORSOrigins())
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("GRACE_PERIOD_SEC", "12")
	t.Setenv("TIMER_CADENCE_MS", "250")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("ENABLE_LOCAL_AUTH", "no")

	c := FromEnv()
	if c.GracePeriod != 12*time.Second || c.TimerCadence != 250*time.Millisecond {
		t.Fatalf("grace=%s cadence=%s", c.GracePeriod, c.TimerCadence)
	}
	if c.RedisDB != 0 {
		t.Fatalf("bad int must fall back to the default, got %d", c.RedisDB)
	}
	if got := c.CORSOrigins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("online origins = %v", got)
	}
	if c.EnableLocalAuth {
		t.Fatalf("ENABLE_LOCAL_AUTH=no ignored")
	}
}
