package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	PPL      PPLConfig      `yaml:"ppl"`
	Sync     SyncConfig     `yaml:"sync"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type PPLConfig struct {
	// Environment selects the carrier base URL ("prod" | "test") unless
	// base_url overrides it explicitly.
	Environment  string `yaml:"environment"`
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	LabelFormat  string `yaml:"label_format"`
	LabelDpi     int    `yaml:"label_dpi"`

	// Mode "fake" runs against the deterministic in-process carrier stub.
	Mode string `yaml:"mode"`
}

type SyncConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	SwaggerPath string `yaml:"swagger_path"`

	LabelIntervalSeconds    int `yaml:"label_interval_seconds"`
	LabelBatchSize          int `yaml:"label_batch_size"`
	LabelLockTTLSeconds     int `yaml:"label_lock_ttl_seconds"`
	LabelMaxAttempts        int `yaml:"label_max_attempts"`
	LabelMaxPendingAgeHours int `yaml:"label_max_pending_age_hours"`

	TrackingIntervalSeconds int `yaml:"tracking_interval_seconds"`
	TrackingQueryLimit      int `yaml:"tracking_query_limit"`
	TrackingLockTTLSeconds  int `yaml:"tracking_lock_ttl_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
