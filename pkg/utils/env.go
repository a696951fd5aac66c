package utils

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment files in priority order, e.g. .env.production before .env
// Missing files are reported to the caller; values already set in the process win
func LoadEnv(env string) error {
	candidates := []string{".env"}
	if env != "" {
		candidates = []string{fmt.Sprintf(".env.%s", strings.ToLower(env)), ".env"}
	}

	var loaded bool
	var lastErr error
	for _, name := range candidates {
		if _, err := os.Stat(name); err != nil {
			lastErr = err
			continue
		}
		if err := godotenv.Load(name); err != nil {
			lastErr = err
			continue
		}
		loaded = true
	}
	if !loaded {
		return fmt.Errorf("no env file loaded: %w", lastErr)
	}
	return nil
}

// GetEnv returns the trimmed value of an environment variable
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetIntEnv returns an integer environment variable, 0 when unset or invalid
func GetIntEnv(key string) int64 {
	v := GetEnv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// GetBoolEnv returns a boolean environment variable, false when unset or invalid
func GetBoolEnv(key string) bool {
	v := GetEnv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

const randChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandText generates a random alphanumeric string of length n
func RandText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randChars[rand.Intn(len(randChars))]
	}
	return string(b)
}
