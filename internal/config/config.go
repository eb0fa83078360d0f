package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Collaborator CollaboratorConfig `mapstructure:"collaborator"`
	Workspace    WorkspaceConfig    `mapstructure:"workspace"`
	Sandbox      SandboxConfig      `mapstructure:"sandbox"`
	Assistant    AssistantConfig    `mapstructure:"assistant"`
	Security     SecurityConfig     `mapstructure:"security"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// CollaboratorConfig points at the REST service owning project and user
// persistence. The engine only reads project seeds and writes file tree
// snapshots through it.
type CollaboratorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WorkspaceConfig struct {
	// Debounce is the quiet period before buffered local edits are
	// committed to the shared tree.
	Debounce time.Duration `mapstructure:"debounce"`
}

type SandboxConfig struct {
	WorkDir        string        `mapstructure:"work_dir"`
	InstallCommand []string      `mapstructure:"install_command"`
	StartCommand   []string      `mapstructure:"start_command"`
	InstallTimeout time.Duration `mapstructure:"install_timeout"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

type AssistantConfig struct {
	Mention string       `mapstructure:"mention"`
	Gemini  GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "60s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Auth
	v.SetDefault("auth.access_token_ttl", "24h")

	// Collaborator
	v.SetDefault("collaborator.base_url", "http://localhost:3000")
	v.SetDefault("collaborator.timeout", "10s")

	// Workspace
	v.SetDefault("workspace.debounce", "750ms")

	// Sandbox
	v.SetDefault("sandbox.work_dir", "")
	v.SetDefault("sandbox.install_command", []string{"npm", "install"})
	v.SetDefault("sandbox.start_command", []string{"npm", "start"})
	v.SetDefault("sandbox.install_timeout", "120s")
	v.SetDefault("sandbox.ready_timeout", "30s")
	v.SetDefault("sandbox.stop_timeout", "5s")

	// Assistant
	v.SetDefault("assistant.mention", "@ai")
	v.SetDefault("assistant.gemini.model", "gemini-2.0-flash")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 60)
	v.SetDefault("security.rate_limit.burst", 10)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Collaborator
	v.BindEnv("collaborator.base_url", "COLLABORATOR_URL")
	v.BindEnv("collaborator.token", "COLLABORATOR_TOKEN")

	// Assistant
	v.BindEnv("assistant.gemini.api_key", "GEMINI_API_KEY")
}
