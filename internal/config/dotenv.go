package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv reads a .env file and sets the variables it defines.
// Existing environment variables always win, so a deployment can override
// anything the file says. Kept dependency-free on purpose: the format we
// accept is KEY=VALUE lines, comments, and optional "export " prefixes.
func LoadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err // missing file is fine, caller ignores
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
