package db

import (
	"fmt"
	"net/url"
	"strings"

	"printbroker/internal/config"
)

func postgresPort(cfg config.DatabaseConfig) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 5432
}

// postgresDSN builds a postgres:// URL from discrete settings. A DSN that is
// already a URL is passed through unchanged.
func postgresDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := cfg.Host
	port := postgresPort(cfg)
	// Handle IPv6 or explicit host:port strings.
	if strings.HasPrefix(hostPort, "[") {
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	} else if strings.Count(hostPort, ":") >= 2 {
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	} else if !strings.Contains(hostPort, ":") {
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DSN returns the driver-specific data source name for cfg.
func DSN(cfg config.DatabaseConfig) (string, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return "", err
	}
	if d == SQLite {
		if cfg.DSN == "" {
			return "", fmt.Errorf("sqlite path is empty")
		}
		return cfg.DSN, nil
	}
	return postgresDSN(cfg)
}
