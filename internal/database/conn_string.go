package database

import (
	"fmt"
	"net/url"

	"github.com/openquant/feedbridge/internal/config"
)

// BuildConnString assembles a pgx-compatible PostgreSQL URL from the
// output target's database settings. An unset ssl_mode falls back to
// "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	// Passwords routinely carry URL metacharacters.
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}
