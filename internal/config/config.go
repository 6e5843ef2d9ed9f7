// Package config loads fastcheck settings from fastcheck.json, a .env file
// and FASTCHECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ayusman/fastcheck/internal/pose"
)

// FileName is the config file looked up in the config directory.
const FileName = "fastcheck.json"

// EnvPrefix prefixes environment overrides, e.g. FASTCHECK_BACKEND_BASEURL.
const EnvPrefix = "FASTCHECK"

type ServerConfig struct {
	Addr      string `mapstructure:"addr" validate:"required,hostname_port"`
	StaticDir string `mapstructure:"staticDir"`
}

type CameraConfig struct {
	DeviceID int `mapstructure:"deviceId" validate:"gte=0"`
	Width    int `mapstructure:"width" validate:"gte=0"`
	Height   int `mapstructure:"height" validate:"gte=0"`
	FPS      int `mapstructure:"fps" validate:"gte=1,lte=60"`
}

type DetectorConfig struct {
	Python          string        `mapstructure:"python"`
	Script          string        `mapstructure:"script"`
	MinConfidence   float64       `mapstructure:"minConfidence" validate:"gte=0,lte=1"`
	MinTrackingConf float64       `mapstructure:"minTrackingConf" validate:"gte=0,lte=1"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
}

type BackendConfig struct {
	BaseURL     string        `mapstructure:"baseUrl" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	SessionPath string        `mapstructure:"sessionPath" validate:"required,startswith=/"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
}

type FaceConfig struct {
	Tolerances pose.Tolerances `mapstructure:"tolerances"`
	Smoothing  float64         `mapstructure:"smoothing" validate:"gt=0,lte=1"`
	Annotate   bool            `mapstructure:"annotate"`
}

type ScreeningConfig struct {
	Mirrored    bool          `mapstructure:"mirrored"`
	AutoAdvance bool          `mapstructure:"autoAdvance"`
	ArmDwell    time.Duration `mapstructure:"armDwell" validate:"gt=0"`
	FaceDwell   time.Duration `mapstructure:"faceDwell" validate:"gt=0"`
	Cooldown    time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	Guides      pose.Guides   `mapstructure:"guides"`
	Face        FaceConfig    `mapstructure:"face"`
}

type HistoryConfig struct {
	Keep int `mapstructure:"keep" validate:"gte=0"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel  string          `mapstructure:"logLevel" validate:"oneof=trace debug info warn error"`
	LogsDir   string          `mapstructure:"logsDir"`
	DataDir   string          `mapstructure:"dataDir" validate:"required"`
	Server    ServerConfig    `mapstructure:"server"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Screening ScreeningConfig `mapstructure:"screening"`
	History   HistoryConfig   `mapstructure:"history"`
}

// DBPath returns the SQLite database path inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "fastcheck.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logsDir", "./logs")
	v.SetDefault("dataDir", "./data")

	v.SetDefault("server.addr", "127.0.0.1:8089")
	v.SetDefault("server.staticDir", "")

	v.SetDefault("camera.deviceId", 0)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.fps", 15)

	v.SetDefault("detector.python", "")
	v.SetDefault("detector.script", "")
	v.SetDefault("detector.minConfidence", 0.5)
	v.SetDefault("detector.minTrackingConf", 0.5)
	v.SetDefault("detector.idleTimeout", "30s")

	v.SetDefault("backend.baseUrl", "http://localhost:8000")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.sessionPath", "/api/v1/auth/me")
	v.SetDefault("backend.user", "")
	v.SetDefault("backend.password", "")

	guides := pose.DefaultGuides()
	tol := pose.DefaultTolerances()
	v.SetDefault("screening.mirrored", true)
	v.SetDefault("screening.autoAdvance", true)
	v.SetDefault("screening.armDwell", "3s")
	v.SetDefault("screening.faceDwell", "5s")
	v.SetDefault("screening.cooldown", "3s")
	v.SetDefault("screening.guides.left.x", guides.Left.X)
	v.SetDefault("screening.guides.left.y", guides.Left.Y)
	v.SetDefault("screening.guides.left.w", guides.Left.W)
	v.SetDefault("screening.guides.left.h", guides.Left.H)
	v.SetDefault("screening.guides.right.x", guides.Right.X)
	v.SetDefault("screening.guides.right.y", guides.Right.Y)
	v.SetDefault("screening.guides.right.w", guides.Right.W)
	v.SetDefault("screening.guides.right.h", guides.Right.H)
	v.SetDefault("screening.face.tolerances.roll", tol.Roll)
	v.SetDefault("screening.face.tolerances.yaw", tol.Yaw)
	v.SetDefault("screening.face.tolerances.pitch", tol.Pitch)
	v.SetDefault("screening.face.smoothing", pose.DefaultSmoothing)
	v.SetDefault("screening.face.annotate", true)

	v.SetDefault("history.keep", 200)
}

// Load reads configuration from configDir and sets default values. A missing
// config file is not an error; every key has a default. A .env file in
// configDir is loaded into the environment first without overriding
// variables that are already set.
func Load(configDir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	path := filepath.Join(configDir, FileName)
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
