/*
 * Copyright (c) "Robsdedude"
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neo4j

import (
	"crypto/x509"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// Config holds the settings of a driver. Instances are modified through
// configuration functions passed to NewDriver, never directly.
type Config struct {
	// RootCAs defines the certificate authorities trusted when connecting
	// with one of the encrypted schemes. Nil means the host's trust store.
	RootCAs *x509.CertPool
	// Log is the target of driver side logging, defaults to no logging.
	Log log.Logger
	// MaxTransactionRetryTime is the longest span during which managed
	// transactions keep retrying after a retryable failure.
	//
	// default: 30s
	MaxTransactionRetryTime time.Duration
	// MaxConnectionPoolSize caps the number of connections per server, in
	// every state. A negative value lifts the cap.
	//
	// default: 100
	MaxConnectionPoolSize int
	// MaxConnectionLifetime is the age at which pooled connections are
	// replaced rather than reused. Zero or negative disables the check.
	//
	// default: 1h
	MaxConnectionLifetime time.Duration
	// ConnectionAcquisitionTimeout is the longest a session waits for a
	// connection when the pool is saturated. Zero or negative waits
	// forever.
	//
	// default: 1m
	ConnectionAcquisitionTimeout time.Duration
	// SocketConnectTimeout limits the TCP dial, zero or negative leaves it
	// to the operating system.
	//
	// default: 5s
	SocketConnectTimeout time.Duration
	// SocketKeepalive enables TCP keep-alive probes on the underlying
	// sockets.
	//
	// default: true
	SocketKeepalive bool
	// UserAgent announced to the server during connection setup.
	//
	// default: neo4j-go-driver/<version>
	UserAgent string
	// FetchSize is the number of records pulled per request while
	// streaming results. FetchAll streams without batching.
	//
	// default: 1000
	FetchSize int
}

const FetchAll = -1
const FetchDefault = 0

// UserAgent is the default user agent this driver reports to the server.
const UserAgent = "neo4j-go-driver/" + Version

// Version is the version of this driver.
const Version = "5.0"

func defaultConfig() *Config {
	return &Config{
		Log:                          log.Void(),
		MaxTransactionRetryTime:      30 * time.Second,
		MaxConnectionPoolSize:        100,
		MaxConnectionLifetime:        1 * time.Hour,
		ConnectionAcquisitionTimeout: 1 * time.Minute,
		SocketConnectTimeout:         5 * time.Second,
		SocketKeepalive:              true,
		UserAgent:                    UserAgent,
		FetchSize:                    FetchDefault,
	}
}

func validateAndNormaliseConfig(config *Config) error {
	if config.Log == nil {
		config.Log = log.Void()
	}
	if config.MaxTransactionRetryTime < 0 {
		config.MaxTransactionRetryTime = 0
	}
	if config.MaxConnectionPoolSize == 0 {
		return &UsageError{Message: "Max connection pool cannot be 0"}
	}
	if config.UserAgent == "" {
		config.UserAgent = UserAgent
	}
	return nil
}
