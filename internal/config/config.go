package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultHeartbeatInterval = 30 * time.Second

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	SigningKey        []byte
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	MigrationsURL     string
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, heartbeat time.Duration, migrationsURL string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if heartbeat < 0 {
		return nil, fmt.Errorf("heartbeat interval cannot be negative")
	}
	if heartbeat == 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	signingKey, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:        serverAddr,
		DatabaseDSN:       databaseDSN,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		HeartbeatInterval: heartbeat,
		MigrationsURL:     migrationsURL,
	}, nil
}
