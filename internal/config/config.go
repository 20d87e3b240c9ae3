package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable, e.g. PRESENCE_HTTP_PORT.
const EnvPrefix = "PRESENCE"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Env keys derive from field names (split_words), never from bare tags, so PATH or PORT
// in the process environment cannot leak into nested sections
type Config struct {
	HTTP      *HTTPConfig      `json:"http" validate:"required"`
	WebSocket *WebSocketConfig `json:"websocket" validate:"required"`
	Presence  *PresenceConfig  `json:"presence" validate:"required"`
	Journal   *JournalConfig   `json:"journal" validate:"required"`
	Redis     *RedisConfig     `json:"redis" validate:"required"`
	RateLimit *RateLimitConfig `json:"rate_limit" validate:"required" split_words:"true"`
	Log       *LogConfig       `json:"log" validate:"required"`
}

type HTTPConfig struct {
	Host         string        `json:"host" validate:"required"`
	Port         int           `json:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `json:"read_timeout" validate:"gt=0" split_words:"true"`
	WriteTimeout time.Duration `json:"write_timeout" validate:"gt=0" split_words:"true"`
}

// FUNCTIONAL DISCOVERY: ReadTimeout is the pong wait and must outlast the ping interval
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval" validate:"gt=0" split_words:"true"`
	ReadTimeout    time.Duration `json:"read_timeout" validate:"gtfield=PingInterval" split_words:"true"`
	WriteTimeout   time.Duration `json:"write_timeout" validate:"gt=0" split_words:"true"`
	BufferSize     int           `json:"buffer_size" validate:"gt=0" split_words:"true"`
	MaxMessageSize int64         `json:"max_message_size" validate:"gt=0" split_words:"true"`
	AllowedOrigins []string      `json:"allowed_origins" split_words:"true"`
}

type PresenceConfig struct {
	ReaperInterval time.Duration `json:"reaper_interval" validate:"gt=0" split_words:"true"`
	StaleThreshold time.Duration `json:"stale_threshold" validate:"gt=0" split_words:"true"`
	MaxMediaBytes  int           `json:"max_media_bytes" validate:"gt=0" split_words:"true"`
	EventBuffer    int           `json:"event_buffer" validate:"gt=0" split_words:"true"`
}

// Journal is disabled when Path is empty.
type JournalConfig struct {
	Path      string        `json:"path"`
	Timeout   time.Duration `json:"timeout" validate:"gt=0"`
	QueueSize int           `json:"queue_size" validate:"gt=0" split_words:"true"`
}

// Mirror is disabled when URL is empty.
type RedisConfig struct {
	URL           string `json:"url" validate:"omitempty,url"`
	ChannelPrefix string `json:"channel_prefix" validate:"required" split_words:"true"`
	QueueSize     int    `json:"queue_size" validate:"gt=0" split_words:"true"`
}

// Zero MessagesPerMinute disables rate limiting.
type RateLimitConfig struct {
	MessagesPerMinute int           `json:"messages_per_minute" validate:"min=0" split_words:"true"`
	Window            time.Duration `json:"window" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json console"`
}

var validate = validator.New()

// FUNCTIONAL DISCOVERY: Production-ready defaults
// 60s reaper sweep, 5 minute staleness, 30s heartbeat, journal and mirror off
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 16 << 20,
		},
		Presence: &PresenceConfig{
			ReaperInterval: 60 * time.Second,
			StaleThreshold: 5 * time.Minute,
			MaxMediaBytes:  10 << 20,
			EventBuffer:    1000,
		},
		Journal: &JournalConfig{
			Path:      "",
			Timeout:   30 * time.Second,
			QueueSize: 256,
		},
		Redis: &RedisConfig{
			ChannelPrefix: "presencerelay",
			QueueSize:     256,
		},
		RateLimit: &RateLimitConfig{
			MessagesPerMinute: 0,
			Window:            time.Minute,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks every section against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Environment variables override defaults
// Unset variables leave the default in place; malformed values are an error
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return config, nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
// and to tell absent fields from zero values
type ConfigFile struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval   string   `json:"ping_interval"`
		ReadTimeout    string   `json:"read_timeout"`
		WriteTimeout   string   `json:"write_timeout"`
		BufferSize     int      `json:"buffer_size"`
		MaxMessageSize int64    `json:"max_message_size"`
		AllowedOrigins []string `json:"allowed_origins"`
	} `json:"websocket"`
	Presence *struct {
		ReaperInterval string `json:"reaper_interval"`
		StaleThreshold string `json:"stale_threshold"`
		MaxMediaBytes  int    `json:"max_media_bytes"`
		EventBuffer    int    `json:"event_buffer"`
	} `json:"presence"`
	Journal *struct {
		Path      *string `json:"path"`
		Timeout   string  `json:"timeout"`
		QueueSize int     `json:"queue_size"`
	} `json:"journal"`
	Redis *struct {
		URL           *string `json:"url"`
		ChannelPrefix string  `json:"channel_prefix"`
		QueueSize     int     `json:"queue_size"`
	} `json:"redis"`
	RateLimit *struct {
		MessagesPerMinute *int   `json:"messages_per_minute"`
		Window            string `json:"window"`
	} `json:"rate_limit"`
	Log *struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
}

// LoadFromFile reads a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// A named file that cannot be read is an error; an empty path skips the file layer
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	d := durations{}

	if f := file.HTTP; f != nil {
		setString(&config.HTTP.Host, f.Host)
		setInt(&config.HTTP.Port, f.Port)
		d.parse("http.read_timeout", f.ReadTimeout, &config.HTTP.ReadTimeout)
		d.parse("http.write_timeout", f.WriteTimeout, &config.HTTP.WriteTimeout)
	}

	if f := file.WebSocket; f != nil {
		d.parse("websocket.ping_interval", f.PingInterval, &config.WebSocket.PingInterval)
		d.parse("websocket.read_timeout", f.ReadTimeout, &config.WebSocket.ReadTimeout)
		d.parse("websocket.write_timeout", f.WriteTimeout, &config.WebSocket.WriteTimeout)
		setInt(&config.WebSocket.BufferSize, f.BufferSize)
		if f.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = f.MaxMessageSize
		}
		if f.AllowedOrigins != nil {
			config.WebSocket.AllowedOrigins = f.AllowedOrigins
		}
	}

	if f := file.Presence; f != nil {
		d.parse("presence.reaper_interval", f.ReaperInterval, &config.Presence.ReaperInterval)
		d.parse("presence.stale_threshold", f.StaleThreshold, &config.Presence.StaleThreshold)
		setInt(&config.Presence.MaxMediaBytes, f.MaxMediaBytes)
		setInt(&config.Presence.EventBuffer, f.EventBuffer)
	}

	if f := file.Journal; f != nil {
		if f.Path != nil {
			config.Journal.Path = *f.Path
		}
		d.parse("journal.timeout", f.Timeout, &config.Journal.Timeout)
		setInt(&config.Journal.QueueSize, f.QueueSize)
	}

	if f := file.Redis; f != nil {
		if f.URL != nil {
			config.Redis.URL = *f.URL
		}
		setString(&config.Redis.ChannelPrefix, f.ChannelPrefix)
		setInt(&config.Redis.QueueSize, f.QueueSize)
	}

	if f := file.RateLimit; f != nil {
		if f.MessagesPerMinute != nil {
			config.RateLimit.MessagesPerMinute = *f.MessagesPerMinute
		}
		d.parse("rate_limit.window", f.Window, &config.RateLimit.Window)
	}

	if f := file.Log; f != nil {
		setString(&config.Log.Level, f.Level)
		setString(&config.Log.Format, f.Format)
	}

	if d.err != nil {
		return fmt.Errorf("invalid duration in %s: %w", filepath, d.err)
	}
	return nil
}

// durations keeps the first parse failure so applyFile reads straight through.
type durations struct {
	err error
}

func (d *durations) parse(field, raw string, dst *time.Duration) {
	if raw == "" || d.err != nil {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", field, err)
		return
	}
	*dst = v
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
