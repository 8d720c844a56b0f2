package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	APNS     APNSConfig     `yaml:"apns"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	DBName        string `yaml:"dbname"`
	SSLMode       string `yaml:"sslmode"`
	MigrationsDir string `yaml:"migrations_dir"`
}

// AWSConfig holds AWS configuration for avatar storage
type AWSConfig struct {
	Region     string `yaml:"region"`
	S3Bucket   string `yaml:"s3_bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	DisableSSL bool   `yaml:"disable_ssl"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// APNSConfig holds push notification configuration. Pushes are disabled
// when KeyPath is empty.
type APNSConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
