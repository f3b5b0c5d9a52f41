package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	AWS struct {
		Region               string `yaml:"region"`
		QueueURL             string `yaml:"queueURL"`
		AthenaOutputLocation string `yaml:"athenaOutputLocation"`
	} `yaml:"aws"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Tavily struct {
		APIKey string `yaml:"apiKey"`
	} `yaml:"tavily"`

	Pipeline struct {
		Workers            int     `yaml:"workers"`
		Concurrency        int     `yaml:"concurrency"`
		MaxAttempts        int     `yaml:"maxAttempts"`
		MaxImagesPerCall   int     `yaml:"maxImagesPerCall"`
		SecondPassMargin   float64 `yaml:"secondPassMargin"`
		CallTimeoutSeconds int     `yaml:"callTimeoutSeconds"`
		JobTimeoutSeconds  int     `yaml:"jobTimeoutSeconds"`
	} `yaml:"pipeline"`
}

// Load reads the config.yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 2
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 5
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.MaxImagesPerCall <= 0 {
		c.Pipeline.MaxImagesPerCall = 20
	}
	if c.Pipeline.SecondPassMargin <= 0 {
		c.Pipeline.SecondPassMargin = 0.1
	}
	if c.Pipeline.CallTimeoutSeconds <= 0 {
		c.Pipeline.CallTimeoutSeconds = 120
	}
	if c.Pipeline.JobTimeoutSeconds <= 0 {
		c.Pipeline.JobTimeoutSeconds = 900
	}
}

// CallTimeout per external call; kept below JobTimeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Pipeline.CallTimeoutSeconds) * time.Second
}

// JobTimeout is the hard deadline for one job execution; it should match
// the queue's visibility timeout.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeoutSeconds) * time.Second
}

// MySQLDSN helper to build the MySQL DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN helper to build the Postgres DSN
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
