package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is assembled from an optional config.yaml plus environment
// variables; the environment always wins. The model path has no
// default: serving without a model is not an option.
type Config struct {
	Http struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Name     string `yaml:"name"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"database"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads the optional YAML file at path, then applies environment
// overrides. Returns an error when the model path is missing.
func Load(path string) (*Config, error) {
	// .env is a development convenience; absence is normal.
	_ = godotenv.Load()

	config := defaults()

	if path != "" {
		file, err := os.Open(path)
		if err == nil {
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(config); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnv(config)

	if config.Model.Path == "" {
		return nil, errors.New("MODEL_PATH is required")
	}
	return config, nil
}

func defaults() *Config {
	config := &Config{}
	config.Http.Port = 8100
	config.Database.Host = "postgres"
	config.Database.Port = 5432
	config.Database.Name = "asl_predictions"
	config.Database.User = "asl_user"
	config.Database.Password = "asl_password"
	config.Log.Level = "info"
	return config
}

func applyEnv(config *Config) {
	config.Http.Port = GetEnvInt("HTTP_PORT", config.Http.Port)
	config.Model.Path = GetEnvString("MODEL_PATH", config.Model.Path)
	config.Database.Host = GetEnvString("POSTGRES_HOST", config.Database.Host)
	config.Database.Port = GetEnvInt("POSTGRES_PORT", config.Database.Port)
	config.Database.Name = GetEnvString("POSTGRES_DB", config.Database.Name)
	config.Database.User = GetEnvString("POSTGRES_USER", config.Database.User)
	config.Database.Password = GetEnvString("POSTGRES_PASSWORD", config.Database.Password)
	config.Log.Level = GetEnvString("LOG_LEVEL", config.Log.Level)
	config.Log.File = GetEnvString("LOG_FILE", config.Log.File)
}

func GetEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
