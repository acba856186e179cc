package util

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads `.env.<env>` and then `.env`. Variables already present in the
// process environment always win; missing files are not an error.
func LoadEnv(env string) error {
	var files []string
	for _, name := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return nil
	}
	return godotenv.Load(files...)
}

// GetEnv returns the variable or the first default when unset.
func GetEnv(key string, def ...string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func GetIntEnv(key string, def ...int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		if len(def) > 0 {
			return def[0]
		}
		return 0
	}
	n, err := cast.ToInt64E(v)
	if err != nil && len(def) > 0 {
		return def[0]
	}
	return n
}

func GetBoolEnv(key string, def ...bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return len(def) > 0 && def[0]
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return len(def) > 0 && def[0]
	}
	return b
}

// GetDurationEnv accepts Go duration strings ("5s", "2m"); bare integers are nanoseconds.
func GetDurationEnv(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetListEnv splits a comma-separated variable, dropping empty items.
func GetListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(GetEnv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
