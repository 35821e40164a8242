package config

import (
	"fmt"
	"os"
	"strings"
)

// secretsDir - стандартный путь Docker Secrets. Переменная для тестов.
var secretsDir = "/run/secrets"

// ReadSecret читает секрет из файла Docker Secrets. Если файла нет,
// используется переменная окружения envFallback (для локального запуска).
func ReadSecret(secretName, envFallback string) (string, error) {
	filePath := fmt.Sprintf("%s/%s", secretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err == nil {
		secret := strings.TrimSpace(string(secretBytes))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return secret, nil
	}
	if envFallback != "" {
		if v := strings.TrimSpace(os.Getenv(envFallback)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
}
