package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=3000"`
	HealthPort int    `env:"HEALTH_PORT,default=3001"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH"`
	RedisURL       string `env:"REDIS_URL"`
	BusChannel     string `env:"BUS_CHANNEL,default=chat-messages"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=1h"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`
	RateLimitMax      int           `env:"RATE_LIMIT_MAX,default=100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	ConnectionBufferSize    int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PingInterval            time.Duration `env:"PING_INTERVAL,default=30s"`
	PresenceTTL             time.Duration `env:"PRESENCE_TTL,default=90s"`
	PresenceRefreshInterval time.Duration `env:"PRESENCE_REFRESH_INTERVAL,default=30s"`
	RestartInterval         time.Duration `env:"RESTART_INTERVAL,default=1s"`
	StatsInterval           time.Duration `env:"STATS_INTERVAL,default=1m"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=1000"`
	CensoredWordsDir string `env:"CENSORED_WORDS_DIR"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	FCMEndpoint  string `env:"FCM_ENDPOINT"`
	FCMServerKey string `env:"FCM_SERVER_KEY"`

	DefaultPageLimit int `env:"DEFAULT_PAGE_LIMIT,default=20"`
	MaxPageLimit     int `env:"MAX_PAGE_LIMIT,default=100"`
}

// Origins splits ALLOWED_ORIGINS, an empty list accepts every origin.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" && origin != "*" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Validate checks the relations between settings that tags can't express.
func (c Config) Validate() error {
	if c.RedisURL == "" && c.BadgerFilepath == "" {
		return fmt.Errorf("BADGER_FILEPATH is required when REDIS_URL is not set")
	}
	if c.RateLimitMax > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.PresenceRefreshInterval >= c.PresenceTTL {
		return fmt.Errorf("PRESENCE_REFRESH_INTERVAL (%s) must be lower than PRESENCE_TTL (%s)", c.PresenceRefreshInterval, c.PresenceTTL)
	}
	if c.MaxPageLimit < c.DefaultPageLimit {
		return fmt.Errorf("MAX_PAGE_LIMIT (%d) must not be lower than DEFAULT_PAGE_LIMIT (%d)", c.MaxPageLimit, c.DefaultPageLimit)
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
