package internal

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	GrpcPort  int    `env:"GRPC_PORT,default=9090" validate:"min=1,max=65535"`
	DebugPort int    `env:"DEBUG_PORT,default=0" validate:"min=0,max=65535"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	JwtSecret         string        `env:"JWT_SECRET,required=true" validate:"min=16"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`

	BadgerFilepath    string `env:"BADGER_FILEPATH,default=./data/badger" validate:"required"`
	RelationalBackend string `env:"RELATIONAL_BACKEND,default=badger" validate:"oneof=badger postgres"`
	PostgresURL       string `env:"POSTGRES_URL" validate:"required_if=RelationalBackend postgres"`
	MessageBackend    string `env:"MESSAGE_BACKEND,default=badger" validate:"oneof=badger mongo"`
	MongoURI          string `env:"MONGO_URI" validate:"required_if=MessageBackend mongo"`
	MongoDatabase     string `env:"MONGO_DATABASE,default=chat_relay"`

	RedisURL string        `env:"REDIS_URL" validate:"required_if=BusBackend redis"`
	CacheTTL time.Duration `env:"CACHE_TTL,default=10s"`

	BusBackend             string        `env:"BUS_BACKEND,default=memory" validate:"oneof=redis nats memory"`
	NatsURL                string        `env:"NATS_URL" validate:"required_if=BusBackend nats"`
	PerRoomListeners       bool          `env:"PER_ROOM_LISTENERS,default=true"`
	ChatListScoped         bool          `env:"CHAT_LIST_PARTICIPANTS_ONLY,default=false"`
	ListenerRestartBackoff time.Duration `env:"LISTENER_RESTART_BACKOFF,default=5s"`

	RetentionLimit       int     `env:"RETENTION_LIMIT,default=500" validate:"min=1"`
	HistoryLimit         int     `env:"HISTORY_LIMIT,default=500" validate:"min=1"`
	MaxTextLength        int     `env:"MAX_TEXT_LENGTH,default=1024" validate:"min=1"`
	ConnectionBufferSize int     `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"min=1"`
	RateLimitPerSecond   float64 `env:"RATE_LIMIT_PER_SECOND,default=10" validate:"gt=0"`
	RateLimitBurst       int     `env:"RATE_LIMIT_BURST,default=20" validate:"min=1"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=false"`
	CharReplacement   string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	MessageTopic string `env:"MESSAGE_TOPIC,default=chat-messages" validate:"required_with=KafkaBrokers"`

	HealthInterval time.Duration `env:"HEALTH_INTERVAL,default=10s"`
}

// LoadConfig reads an optional .env file then the environment.
func LoadConfig() (Config, error) {
	// A missing .env is fine; variables may come from the environment only.
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := CharacterRune(config.CharReplacement); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Brokers splits KAFKA_BROKERS on commas; empty disables the export.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("%w: MODERATION_CHARACTER_REPLACEMENT got %q", errors.ErrInvalidCharacter, str)
	}
	return r[0], nil
}
