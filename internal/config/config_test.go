package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so defaults apply. Tests using it
// cannot be t.Parallel because t.Setenv mutates process state.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_PORT", "SERVER_ENV", "PUBLIC_BASE_URL", "CORS_ALLOW_ORIGINS", "LOG_HEALTH_REQUESTS",
		"STORE_BACKEND", "DATABASE_URL", "DATABASE_MAX_CONNS", "DATABASE_MIN_CONNS",
		"REDIS_URL",
		"ARGON2_MEMORY", "ARGON2_ITERATIONS", "ARGON2_PARALLELISM", "ARGON2_SALT_LENGTH", "ARGON2_KEY_LENGTH",
		"VOICE_UPSTREAM_URL", "VOICE_SERVICE_SECRET", "VOICE_TIMEOUT",
		"PRESENCE_TTL", "TYPING_TTL", "GATEWAY_SEND_BUFFER", "GATEWAY_MAX_CONNECTIONS",
		"RATE_LIMIT_AUTH_COUNT", "RATE_LIMIT_AUTH_WINDOW_SECONDS",
		"RATE_LIMIT_MESSAGES_COUNT", "RATE_LIMIT_MESSAGES_WINDOW_SECONDS",
		"RATE_LIMIT_TYPING_COUNT", "RATE_LIMIT_TYPING_WINDOW_SECONDS",
		"RATE_LIMIT_REACTIONS_COUNT", "RATE_LIMIT_REACTIONS_WINDOW_SECONDS",
		"RATE_LIMIT_API_REQUESTS", "RATE_LIMIT_API_WINDOW_SECONDS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerPort != 4000 {
		t.Errorf("ServerPort = %d, want 4000", cfg.ServerPort)
	}
	if cfg.ServerEnv != "production" {
		t.Errorf("ServerEnv = %q, want %q", cfg.ServerEnv, "production")
	}
	if cfg.PublicBaseURL != "http://localhost:4000" {
		t.Errorf("PublicBaseURL = %q, want %q", cfg.PublicBaseURL, "http://localhost:4000")
	}
	if cfg.CORSAllowOrigins != "*" {
		t.Errorf("CORSAllowOrigins = %q, want %q", cfg.CORSAllowOrigins, "*")
	}

	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendMemory)
	}
	if cfg.DatabaseMaxConn != 25 {
		t.Errorf("DatabaseMaxConn = %d, want 25", cfg.DatabaseMaxConn)
	}
	if cfg.DatabaseMinConn != 5 {
		t.Errorf("DatabaseMinConn = %d, want 5", cfg.DatabaseMinConn)
	}
	if cfg.RedisConfigured() {
		t.Error("RedisConfigured() = true with no REDIS_URL")
	}

	if cfg.Argon2Memory != 65536 {
		t.Errorf("Argon2Memory = %d, want 65536", cfg.Argon2Memory)
	}
	if cfg.Argon2Iterations != 3 {
		t.Errorf("Argon2Iterations = %d, want 3", cfg.Argon2Iterations)
	}
	if cfg.Argon2Parallelism != 2 {
		t.Errorf("Argon2Parallelism = %d, want 2", cfg.Argon2Parallelism)
	}
	if cfg.Argon2SaltLength != 16 {
		t.Errorf("Argon2SaltLength = %d, want 16", cfg.Argon2SaltLength)
	}
	if cfg.Argon2KeyLength != 32 {
		t.Errorf("Argon2KeyLength = %d, want 32", cfg.Argon2KeyLength)
	}

	if cfg.VoiceConfigured() {
		t.Error("VoiceConfigured() = true with no VOICE_UPSTREAM_URL")
	}
	if cfg.VoiceTimeout != 5*time.Second {
		t.Errorf("VoiceTimeout = %v, want 5s", cfg.VoiceTimeout)
	}

	if cfg.PresenceTTL != 120*time.Second {
		t.Errorf("PresenceTTL = %v, want 120s", cfg.PresenceTTL)
	}
	if cfg.TypingTTL != 6*time.Second {
		t.Errorf("TypingTTL = %v, want 6s", cfg.TypingTTL)
	}
	if cfg.GatewaySendBuffer != 256 {
		t.Errorf("GatewaySendBuffer = %d, want 256", cfg.GatewaySendBuffer)
	}
	if cfg.GatewayMaxConnections != 10000 {
		t.Errorf("GatewayMaxConnections = %d, want 10000", cfg.GatewayMaxConnections)
	}

	if cfg.RateLimitAuthCount != 15 || cfg.RateLimitAuthWindowSeconds != 60 {
		t.Errorf("auth rate limit = %d/%ds, want 15/60s", cfg.RateLimitAuthCount, cfg.RateLimitAuthWindowSeconds)
	}
	if cfg.RateLimitMessagesCount != 30 || cfg.RateLimitMessagesWindowSeconds != 10 {
		t.Errorf("messages rate limit = %d/%ds, want 30/10s", cfg.RateLimitMessagesCount, cfg.RateLimitMessagesWindowSeconds)
	}
	if cfg.RateLimitTypingCount != 60 || cfg.RateLimitTypingWindowSeconds != 10 {
		t.Errorf("typing rate limit = %d/%ds, want 60/10s", cfg.RateLimitTypingCount, cfg.RateLimitTypingWindowSeconds)
	}
	if cfg.RateLimitReactionsCount != 40 || cfg.RateLimitReactionsWindowSeconds != 10 {
		t.Errorf("reactions rate limit = %d/%ds, want 40/10s", cfg.RateLimitReactionsCount, cfg.RateLimitReactionsWindowSeconds)
	}
	if cfg.RateLimitAPIRequests != 300 || cfg.RateLimitAPIWindowSeconds != 60 {
		t.Errorf("default rate limit = %d/%ds, want 300/60s", cfg.RateLimitAPIRequests, cfg.RateLimitAPIWindowSeconds)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_MAX_CONNS", "50")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PRESENCE_TTL", "30s")
	t.Setenv("RATE_LIMIT_MESSAGES_COUNT", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want 9090", cfg.ServerPort)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, BackendPostgres)
	}
	if cfg.DatabaseMaxConn != 50 {
		t.Errorf("DatabaseMaxConn = %d, want 50", cfg.DatabaseMaxConn)
	}
	if !cfg.RedisConfigured() {
		t.Error("RedisConfigured() = false with REDIS_URL set")
	}
	if cfg.PresenceTTL != 30*time.Second {
		t.Errorf("PresenceTTL = %v, want 30s", cfg.PresenceTTL)
	}
	if cfg.RateLimitMessagesCount != 5 {
		t.Errorf("RateLimitMessagesCount = %d, want 5", cfg.RateLimitMessagesCount)
	}
}

func TestLoadDevelopmentBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ENV", "development")
	t.Setenv("SERVER_PORT", "5050")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.PublicBaseURL != "http://localhost:5050" {
		t.Errorf("PublicBaseURL = %q, want %q", cfg.PublicBaseURL, "http://localhost:5050")
	}

	// An explicit PUBLIC_BASE_URL wins even in development.
	t.Setenv("PUBLIC_BASE_URL", "https://mango.example.com")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.PublicBaseURL != "https://mango.example.com" {
		t.Errorf("PublicBaseURL = %q, want explicit value", cfg.PublicBaseURL)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for STORE_BACKEND")
	}
	if !strings.Contains(err.Error(), "STORE_BACKEND") {
		t.Errorf("error %q does not mention STORE_BACKEND", err.Error())
	}
}

func TestLoadVoiceRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICE_UPSTREAM_URL", "http://voice:7000")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want validation error for VOICE_SERVICE_SECRET")
	}
	if !strings.Contains(err.Error(), "VOICE_SERVICE_SECRET") {
		t.Errorf("error %q does not mention VOICE_SERVICE_SECRET", err.Error())
	}

	t.Setenv("VOICE_SERVICE_SECRET", strings.Repeat("s", 32))
	if _, err := Load(); err != nil {
		t.Fatalf("Load() with a proper secret returned error: %v", err)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("error %q does not mention SERVER_PORT", err.Error())
	}
	if !strings.Contains(err.Error(), "not-a-number") {
		t.Errorf("error %q does not include the invalid value", err.Error())
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("TYPING_TTL", "six seconds")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "TYPING_TTL") {
		t.Errorf("error %q does not mention TYPING_TTL", err.Error())
	}
}

func TestLoadMultipleErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "abc")
	t.Setenv("DATABASE_MAX_CONNS", "xyz")
	t.Setenv("LOG_HEALTH_REQUESTS", "nope")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() returned nil error, want multiple parse errors")
	}

	errStr := err.Error()
	for _, key := range []string{"SERVER_PORT", "DATABASE_MAX_CONNS", "LOG_HEALTH_REQUESTS"} {
		if !strings.Contains(errStr, key) {
			t.Errorf("error missing %s, got: %s", key, errStr)
		}
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"production", false},
		{"", false},
		{"staging", false},
	}
	for _, tt := range tests {
		cfg := &Config{ServerEnv: tt.env}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment() with env=%q = %v, want %v", tt.env, got, tt.want)
		}
	}
}
