// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config loads the client configuration from the environment and .env files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/chatpay/chatpay-go/api"
	"github.com/chatpay/chatpay-go/realtime"
	cpLog "github.com/chatpay/chatpay-go/util/log"
	"github.com/chatpay/chatpay-go/wallet"
)

// DefaultEnvFiles are the files LoadEnv reads when no files are given.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config contains every setting of the client.
type Config struct {
	APIURL string
	WSURL  string

	SuiNetwork   wallet.Network
	SuiRPCURL    string
	PackageID    string
	ObjectID     string
	GasBudget    uint64
	USDCCoinType string
	WalletKey    string

	GoogleClientID string
	FlutterwaveKey string
	PaystackKey    string

	DatabaseURL string
	Profile     string
	StateFile   string

	Proxy    string
	LogLevel string

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectBackoff  realtime.Backoff
}

// LoadEnv loads the given .env files into the process environment. Variables that are
// already set are not overridden and missing files are skipped.
func LoadEnv(log cpLog.Logger, files ...string) {
	if log == nil {
		log = cpLog.Noop
	}
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			log.Warnf("Failed to load %s: %v", file, err)
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) == 0 {
		log.Debugf("No env files loaded, relying on process environment")
	} else {
		log.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// FromEnv builds a Config from the process environment, applying defaults for unset values.
func FromEnv() *Config {
	network := wallet.Network(GetEnv("CHATPAY_SUI_NETWORK", string(wallet.Testnet)))
	return &Config{
		APIURL: GetEnv("CHATPAY_API_URL", api.DefaultBaseURL),
		WSURL:  GetEnv("CHATPAY_WS_URL", realtime.DefaultURL),

		SuiNetwork:   network,
		SuiRPCURL:    GetEnv("CHATPAY_SUI_RPC_URL", wallet.FullnodeURL(network)),
		PackageID:    GetEnv("CHATPAY_PACKAGE_ID", wallet.DefaultPackageID),
		ObjectID:     GetEnv("CHATPAY_OBJECT_ID", wallet.DefaultObjectID),
		GasBudget:    uint64(GetEnvInt("CHATPAY_GAS_BUDGET", wallet.DefaultGasBudget)),
		USDCCoinType: GetEnv("CHATPAY_USDC_COIN_TYPE", ""),
		WalletKey:    GetEnv("CHATPAY_WALLET_KEY", ""),

		GoogleClientID: GetEnv("CHATPAY_GOOGLE_CLIENT_ID", ""),
		FlutterwaveKey: GetEnv("CHATPAY_FLUTTERWAVE_KEY", ""),
		PaystackKey:    GetEnv("CHATPAY_PAYSTACK_KEY", ""),

		DatabaseURL: GetEnv("CHATPAY_DATABASE_URL", ""),
		Profile:     GetEnv("CHATPAY_PROFILE", "default"),
		StateFile:   GetEnv("CHATPAY_STATE_FILE", ""),

		Proxy:    GetEnv("CHATPAY_PROXY", ""),
		LogLevel: GetEnv("CHATPAY_LOG_LEVEL", "INFO"),

		ReconnectAttempts: GetEnvInt("CHATPAY_RECONNECT_ATTEMPTS", realtime.DefaultReconnectPolicy.MaxAttempts),
		ReconnectDelay:    GetEnvDuration("CHATPAY_RECONNECT_DELAY", realtime.DefaultReconnectPolicy.Delay),
		ReconnectBackoff:  realtime.Backoff(GetEnv("CHATPAY_RECONNECT_BACKOFF", string(realtime.BackoffFixed))),
	}
}

// Load reads the default .env files and returns the resulting config.
func Load(log cpLog.Logger) *Config {
	LoadEnv(log)
	return FromEnv()
}

// ReconnectPolicy returns the realtime reconnect policy described by the config.
func (cfg *Config) ReconnectPolicy() realtime.ReconnectPolicy {
	policy := realtime.DefaultReconnectPolicy
	policy.MaxAttempts = cfg.ReconnectAttempts
	policy.Delay = cfg.ReconnectDelay
	if cfg.ReconnectBackoff != "" {
		policy.Backoff = cfg.ReconnectBackoff
	}
	return policy
}

// GetEnv gets an environment variable with a default value.
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration gets a duration environment variable with a default value. Plain integers
// are read as milliseconds.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}
