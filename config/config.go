package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/vogiaan1904/clinic-queueboard/pkg/util"
)

type Config struct {
	Env       string
	// ClientID names this board instance on the push handshake and in Kafka.
	ClientID  string
	Server    ServerConfig
	Board     BoardConfig
	Push      PushConfig
	Poll      PollConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Notify    NotifyConfig
	Display   DisplayConfig
	Log       LogConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	HTTPPort     int
	GRpcPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BoardConfig scopes the board to one topic: a department and a date, or a board id.
type BoardConfig struct {
	BoardID    string
	Department string
	Date       string
}

type PushConfig struct {
	Enabled              bool
	BaseURL              string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HeartbeatInterval    time.Duration
	TokenSecret          string
	TokenTTL             time.Duration
}

type PollConfig struct {
	BaseURL         string
	StatsInterval   time.Duration
	BoardInterval   time.Duration
	WindowsInterval time.Duration
	IntervalFloor   time.Duration
	RequestTimeout  time.Duration
}

type CacheConfig struct {
	Backend string
	Prefix  string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	OpTimeout    time.Duration
}

type NotifyConfig struct {
	SoundEnabled     bool
	VoiceEnabled     bool
	Language         string
	RepeatWindow     time.Duration
	SoundProvider    string
	SpeechProvider   string
	SoundWebhookURL  string
	SpeechWebhookURL string
	AnnouncementRing int
}

type DisplayConfig struct {
	NamePolicy string
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
	ConsumerEnabled      bool
	ConsumerGroupID      string
	ConsumerFromOldest   bool
	MirrorBuffer         int
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		ClientID: getEnv("BOARD_CLIENT_ID", "board-"+uuid.NewString()),
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("SERVER_HTTP_PORT", 8088),
			GRpcPort:     getEnvAsInt("SERVER_GRPC_PORT", 50057),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Board: BoardConfig{
			BoardID:    getEnv("BOARD_ID", ""),
			Department: getEnv("BOARD_DEPARTMENT", ""),
			Date:       getEnv("BOARD_DATE", util.Today(time.Now())),
		},
		Push: PushConfig{
			Enabled:              getEnvAsBool("PUSH_ENABLED", false),
			BaseURL:              getEnv("PUSH_BASE_URL", "ws://localhost:8000"),
			MaxReconnectAttempts: getEnvAsInt("PUSH_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:       getEnvAsDuration("PUSH_RECONNECT_DELAY", 3*time.Second),
			HeartbeatInterval:    getEnvAsDuration("PUSH_HEARTBEAT_INTERVAL", 30*time.Second),
			TokenSecret:          getEnv("PUSH_TOKEN_SECRET", ""),
			TokenTTL:             getEnvAsDuration("PUSH_TOKEN_TTL", 12*time.Hour),
		},
		Poll: PollConfig{
			BaseURL:         getEnv("POLL_BASE_URL", "http://localhost:8000/api"),
			StatsInterval:   getEnvAsDuration("POLL_STATS_INTERVAL", 10*time.Second),
			BoardInterval:   getEnvAsDuration("POLL_BOARD_INTERVAL", 5*time.Minute),
			WindowsInterval: getEnvAsDuration("POLL_WINDOWS_INTERVAL", 15*time.Second),
			IntervalFloor:   getEnvAsDuration("POLL_INTERVAL_FLOOR", 5*time.Second),
			RequestTimeout:  getEnvAsDuration("POLL_REQUEST_TIMEOUT", 0),
		},
		Cache: CacheConfig{
			Backend: getEnv("CACHE_BACKEND", "redis"),
			Prefix:  getEnv("CACHE_PREFIX", "boardCache"),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 4),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			OpTimeout:    getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},
		Notify: NotifyConfig{
			SoundEnabled:     getEnvAsBool("NOTIFY_SOUND_ENABLED", true),
			VoiceEnabled:     getEnvAsBool("NOTIFY_VOICE_ENABLED", false),
			Language:         getEnv("NOTIFY_LANGUAGE", "ru"),
			RepeatWindow:     getEnvAsDuration("NOTIFY_REPEAT_WINDOW", 10*time.Second),
			SoundProvider:    getEnv("NOTIFY_SOUND_PROVIDER", "log"),
			SpeechProvider:   getEnv("NOTIFY_SPEECH_PROVIDER", "log"),
			SoundWebhookURL:  getEnv("NOTIFY_SOUND_WEBHOOK_URL", ""),
			SpeechWebhookURL: getEnv("NOTIFY_SPEECH_WEBHOOK_URL", ""),
			AnnouncementRing: getEnvAsInt("ANNOUNCEMENT_RING_SIZE", 5),
		},
		Display: DisplayConfig{
			NamePolicy: getEnv("DISPLAY_NAME_POLICY", "initials"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", false),
			ConsumerEnabled:      getEnvAsBool("KAFKA_CONSUMER_ENABLED", false),
			ConsumerGroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "queue-board"),
			ConsumerFromOldest:   getEnvAsBool("KAFKA_CONSUMER_FROM_OLDEST", false),
			MirrorBuffer:         getEnvAsInt("KAFKA_MIRROR_BUFFER", 256),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "queueboard"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}

	if c.Server.GRpcPort <= 0 || c.Server.GRpcPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRpcPort)
	}

	if c.Board.TopicKey() == "" {
		return fmt.Errorf("board topic is required: set BOARD_ID or BOARD_DEPARTMENT")
	}

	if c.Push.MaxReconnectAttempts < 0 {
		return fmt.Errorf("invalid max reconnect attempts: %d", c.Push.MaxReconnectAttempts)
	}

	switch c.Notify.Language {
	case "ru", "uz", "en":
	default:
		return fmt.Errorf("unsupported language: %s", c.Notify.Language)
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}

	switch c.Display.NamePolicy {
	case "full", "initials":
	default:
		return fmt.Errorf("unsupported display name policy: %s", c.Display.NamePolicy)
	}

	if c.Notify.AnnouncementRing <= 0 {
		c.Notify.AnnouncementRing = 5
	}

	return nil
}

// TopicKey is department+date when a department is configured, the board id otherwise.
func (b BoardConfig) TopicKey() string {
	if b.Department != "" {
		return b.Department + "+" + b.Date
	}
	return b.BoardID
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	// Split by comma
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
