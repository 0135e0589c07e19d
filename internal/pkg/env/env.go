// Package env holds the configuration map loaded from the .env file. Values
// fall back to the process environment, so containers and tests can inject
// settings without a file.
package env

import (
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv returns the value for key, preferring the loaded .env map over the
// process environment, then the given default.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the .env file. The binaries run from the repository
// root or from their cmd/<name> directory, so both locations are tried.
func SetupEnvFile() {
	candidates := []string{
		".env",
		"../../.env",
	}

	var err error
	for _, f := range candidates {
		Env, err = godotenv.Read(f)
		if err == nil {
			return
		}
	}

	panic("no .env file found")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
