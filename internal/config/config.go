/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crypto-reward-engine/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}
	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	rateTTL, err := getEnvDuration("REDIS_RATE_TTL", 1*time.Minute)
	if err != nil {
		return nil, err
	}
	callTimeout, err := getEnvDuration("CHAIN_CALL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	issueInterval, err := getEnvDuration("SCHEDULER_ISSUE_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, err
	}
	processInterval, err := getEnvDuration("SCHEDULER_PROCESS_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	confirmInterval, err := getEnvDuration("SCHEDULER_CONFIRM_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownGrace, err := getEnvDuration("SCHEDULER_SHUTDOWN_GRACE", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Backend: getEnvString("STORE_BACKEND", "sqlite"),
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "rewards.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Postgres: models.PostgresConfig{
			DSN:          getEnvString("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			PingTimeout:  pingTimeout,
		},
		Redis: models.RedisConfig{
			Addr:    getEnvString("REDIS_ADDR", ""),
			RateTTL: rateTTL,
		},
		Kafka: models.KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnvString("KAFKA_TOPIC", "instruction-lifecycle"),
		},
		Chain: models.ChainConfig{
			Mode:           getEnvString("CHAIN_MODE", "simulated"),
			CurrenciesFile: getEnvString("CURRENCIES_FILE", "currencies.yaml"),
			CallTimeout:    callTimeout,
		},
		Scheduler: models.SchedulerConfig{
			IssueInterval:   issueInterval,
			ProcessInterval: processInterval,
			ConfirmInterval: confirmInterval,
			ShutdownGrace:   shutdownGrace,
		},
		Rewards: models.RewardsConfig{
			ReferenceCurrency: getEnvString("REFERENCE_CURRENCY", "EUR"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
