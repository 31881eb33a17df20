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

package models

import "time"

// Config represents the application configuration
type Config struct {
	Backend   string // "sqlite" or "postgres"
	Database  DatabaseConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Chain     ChainConfig
	Scheduler SchedulerConfig
	Rewards   RewardsConfig
}

// DatabaseConfig holds sqlite connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// PostgresConfig holds postgres connection settings
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	PingTimeout  time.Duration
}

// RedisConfig holds the optional conversion-rate cache settings. An empty
// Addr disables the cache.
type RedisConfig struct {
	Addr    string
	RateTTL time.Duration
}

// KafkaConfig holds the optional lifecycle event stream settings. Empty
// Brokers disable publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ChainConfig selects the blockchain provider wiring.
type ChainConfig struct {
	Mode           string // "simulated" or "prime"
	CurrenciesFile string
	CallTimeout    time.Duration
}

// SchedulerConfig holds the processing intervals per background job.
type SchedulerConfig struct {
	IssueInterval   time.Duration
	ProcessInterval time.Duration
	ConfirmInterval time.Duration
	ShutdownGrace   time.Duration
}

// RewardsConfig holds reward issuing settings.
type RewardsConfig struct {
	ReferenceCurrency string
}
