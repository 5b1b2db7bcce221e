package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabasePath      string
	DatabaseDriver    string
	ContentRoot       string
	SessionSecret     string
	GinMode           string
	AdminUsername     string
	AdminPasswordHash string
	PageSize          int
	ContentWatch      bool
	ViewDedupWindow   time.Duration
	RedisAddr         string
	RedisPassword     string
}

// LoadEnvFile 把 .env 文件中的变量合并进进程环境，文件不存在时忽略。
// 已经存在的环境变量不会被覆盖。
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := env("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	pageSize := 10
	if raw := strings.TrimSpace(os.Getenv("PAGE_SIZE")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}

	contentWatch := false
	if raw := strings.TrimSpace(os.Getenv("CONTENT_WATCH")); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			contentWatch = b
		}
	}

	dedupWindow := 30 * time.Minute
	if raw := strings.TrimSpace(os.Getenv("VIEW_DEDUP_WINDOW")); raw != "" {
		if raw == "0" {
			dedupWindow = 0
		} else if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			dedupWindow = d
		}
	}

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabasePath:      env("DATABASE_PATH", "content/db.sqlite3"),
		DatabaseDriver:    env("DATABASE_DRIVER", "sqlite3"),
		ContentRoot:       env("CONTENT_ROOT", "content/blog"),
		SessionSecret:     env("SESSION_SECRET", "sitelog-dev-secret"),
		GinMode:           env("GIN_MODE", "release"),
		AdminUsername:     env("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
		PageSize:          pageSize,
		ContentWatch:      contentWatch,
		ViewDedupWindow:   dedupWindow,
		RedisAddr:         strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
	}
}

func env(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
