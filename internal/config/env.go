package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	Platform string `envconfig:"PLATFORM" default:"console"`
	// FilesDir is where agents drop files that should be forwarded to chat.
	FilesDir string `envconfig:"FILES_DIR" default:".chatbridge/files"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".chatbridge/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"chatbridge/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// FallbackEnv tunes the buffer fallback poller for hooks-less agents.
type FallbackEnv struct {
	InitialDelay   time.Duration `envconfig:"FALLBACK_INITIAL_DELAY" default:"15s"`
	StabilityDelay time.Duration `envconfig:"FALLBACK_STABILITY_DELAY" default:"5s"`
	MaxChecks      int           `envconfig:"FALLBACK_MAX_CHECKS" default:"3"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	FallbackEnv
	VAPIDEnv
}

const namespace = "CHATBRIDGE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func FallbackEnvFromEnv(env *Env) *FallbackEnv {
	return &env.FallbackEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
