package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// Config holds runtime settings for the server.
type Config struct {
	ServerAddr    string
	ScratchDir    string
	DatabasePath  string
	S3Bucket      string
	S3Region      string
	RunwareURL    string
	RunwareKey    string
	FetchTimeout  time.Duration
	ClipTimeout   time.Duration
	ConcatTimeout time.Duration
	ClipWorkers   int
	JobRetention  time.Duration
}

// Load reads environment variables and returns normalized runtime config.
func Load() Config {
	return Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8000"),
		ScratchDir:    getEnv("SCRATCH_DIR", ""),
		DatabasePath:  getEnv("DATABASE_PATH", "./data/models.db"),
		S3Bucket:      strings.TrimSpace(os.Getenv("AWS_S3_BUCKET")),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		RunwareURL:    getEnv("RUNWARE_API_URL", "https://api.runware.ai/v1"),
		RunwareKey:    strings.TrimSpace(os.Getenv("RUNWARE_API_KEY")),
		FetchTimeout:  getEnvSeconds("FETCH_TIMEOUT_SECONDS", 30),
		ClipTimeout:   getEnvSeconds("CLIP_TIMEOUT_SECONDS", 120),
		ConcatTimeout: getEnvSeconds("CONCAT_TIMEOUT_SECONDS", 300),
		ClipWorkers:   getEnvInt("CLIP_WORKERS", runtime.NumCPU()),
		JobRetention:  getEnvSeconds("JOB_RETENTION_SECONDS", 3600),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
