// Package config reads the hub's process-wide configuration at startup, in
// the teacher's own env-var-first idiom (see cmd/main.go's getEnv/getEnvInt
// helpers), plus an optional YAML identity allowlist file.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	// HTTP front
	ListenAddr string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost    string
	RedisPort    string
	RedisPassword string
	RedisDB      int
	RedisEnabled bool

	// Durable per-user hub storage
	HubStoreDir string

	// Timeouts, per spec §6
	HandshakeTimeout time.Duration
	ProxyTimeout     time.Duration
	HibernateAfter   time.Duration

	// Identity allowlist file (YAML), consumed by auth.Allowlist.
	AllowlistPath string

	// Mount prefix the HTTP proxy surface is served under, passed straight
	// through to Hub.HTTPProxy for header rewriting (spec §4.4).
	ProxyPrefix string

	// OIDC login front (deliberately out of scope per spec §1; the hub
	// assumes it is invoked with an already-validated owning user id, but
	// something has to produce that id for this deployment to run end to
	// end).
	OIDCEnabled      bool
	OIDCProviderURL  string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURI  string
	OIDCOrgClaim     string
	OIDCTeamClaim    string

	JWTSecret     string
	JWTIssuer     string
	SessionTTL    time.Duration

	LogLevel string
	LogPretty bool
}

// Load builds a Config from the process environment.
func Load() Config {
	return Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "hub"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "hub"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),

		HubStoreDir: getEnv("HUB_STORE_DIR", "./data/hubs"),

		HandshakeTimeout: time.Duration(getEnvInt("HANDSHAKE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ProxyTimeout:     time.Duration(getEnvInt("PROXY_TIMEOUT_MS", 30000)) * time.Millisecond,
		HibernateAfter:   time.Duration(getEnvInt("HIBERNATE_AFTER_MS", 10000)) * time.Millisecond,

		AllowlistPath: getEnv("ALLOWLIST_PATH", ""),
		ProxyPrefix:   getEnv("PROXY_PREFIX", "/clients"),

		OIDCEnabled:      getEnvBool("OIDC_ENABLED", false),
		OIDCProviderURL:  getEnv("OIDC_PROVIDER_URL", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURI:  getEnv("OIDC_REDIRECT_URI", ""),
		OIDCOrgClaim:     getEnv("OIDC_ORG_CLAIM", "org"),
		OIDCTeamClaim:    getEnv("OIDC_TEAM_CLAIM", "team"),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		JWTIssuer:  getEnv("JWT_ISSUER", "relaybridge-hub"),
		SessionTTL: time.Duration(getEnvInt("SESSION_TTL_MINUTES", 1440)) * time.Minute,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// AllowlistFile is the YAML shape of the identity allowlist, loaded once at
// startup and consulted before a user's hub is created (spec §6, §9).
type AllowlistFile struct {
	AllowedOrgs   []string `yaml:"allowed_orgs"`
	AllowedUsers  []string `yaml:"allowed_users"`
	AllowedTeams  []string `yaml:"allowed_teams"`
}

// LoadAllowlist reads the allowlist file. An empty path means "no
// allowlist configured" — every identity is permitted.
func LoadAllowlist(path string) (*AllowlistFile, error) {
	if path == "" {
		return &AllowlistFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f AllowlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
