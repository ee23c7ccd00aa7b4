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

// Package neo4j provides required functionality to connect and execute
// statements against a Neo4j Database.
package neo4j

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/bolt"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/pool"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/router"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// Driver represents a pool of connections to a neo4j server or cluster. It
// is safe for concurrent use.
type Driver interface {
	// Target returns the url this driver is bootstrapped.
	Target() url.URL
	// NewSession creates a new session based on the specified session
	// configuration.
	NewSession(ctx context.Context, config SessionConfig) Session
	// VerifyConnectivity checks that the driver can connect to a remote
	// server or cluster by establishing a network connection with the
	// remote.
	VerifyConnectivity(ctx context.Context) error
	// Close the driver and all underlying connections.
	Close(ctx context.Context) error
	// IsEncrypted determines whether the driver communicates with the
	// server over an encrypted channel.
	IsEncrypted() bool
}

// NewDriver is the entry point to the driver. Accepts the target of the
// connection as a URI and the authentication to use.
//
// Supported schemes are "bolt", "bolt+s", "bolt+ssc" for single instance
// connections and "neo4j", "neo4j+s", "neo4j+ssc" for cluster routed
// connections. The "+s" variants encrypt the traffic, the "+ssc" variants
// encrypt without verifying the server certificate.
func NewDriver(target string, auth AuthToken, configurers ...func(*Config)) (Driver, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, &UsageError{Message: err.Error()}
	}

	d := driver{target: parsed, auth: auth}

	routing := true
	switch parsed.Scheme {
	case "bolt":
		routing = false
	case "bolt+s":
		routing = false
		d.encrypted = true
	case "bolt+ssc":
		routing = false
		d.encrypted = true
		d.skipVerify = true
	case "neo4j":
	case "neo4j+s":
		d.encrypted = true
	case "neo4j+ssc":
		d.encrypted = true
		d.skipVerify = true
	default:
		return nil, &UsageError{
			Message: fmt.Sprintf("URI scheme error: invalid scheme %q, expected bolt, bolt+s, bolt+ssc, neo4j, neo4j+s or neo4j+ssc", parsed.Scheme),
		}
	}

	if parsed.Host != "" && parsed.Hostname() == "" {
		return nil, &UsageError{Message: "URI is missing a hostname"}
	}
	address := parsed.Host
	if parsed.Port() == "" {
		address = net.JoinHostPort(parsed.Hostname(), "7687")
	}

	routingContext, err := routingContextFromQuery(parsed, routing, address)
	if err != nil {
		return nil, err
	}

	d.config = defaultConfig()
	for _, c := range configurers {
		c(d.config)
	}
	if err = validateAndNormaliseConfig(d.config); err != nil {
		return nil, err
	}

	d.log = d.config.Log
	d.logId = fmt.Sprintf("driver-%p", &d)
	d.routingContext = routingContext

	d.pool = pool.New(
		pool.Config{
			MaxSize:     d.config.MaxConnectionPoolSize,
			MaxLifetime: d.config.MaxConnectionLifetime,
		},
		d.connect,
		d.log,
		d.logId,
		time.Now,
	)

	if routing {
		d.router = router.New(address, routingContext, d.pool, d.log, d.logId, time.Now)
	} else {
		d.router = &directRouter{address: address}
	}

	d.log.Infof(log.Driver, d.logId, "Created { target: %s }", address)
	return &d, nil
}

// routingKey is rejected in the query part, the driver computes it itself.
const routingAddressKey = "address"

func routingContextFromQuery(u *url.URL, routing bool, address string) (map[string]string, error) {
	queryValues := u.Query()
	if !routing {
		if len(queryValues) > 0 {
			return nil, &UsageError{Message: "routing context is not supported for direct connections"}
		}
		return nil, nil
	}
	routingContext := make(map[string]string, len(queryValues)+1)
	for k, vs := range queryValues {
		if len(vs) > 1 {
			return nil, &UsageError{Message: fmt.Sprintf("duplicate routing context key %q", k)}
		}
		if k == routingAddressKey {
			return nil, &UsageError{Message: fmt.Sprintf("routing context key %q is reserved", k)}
		}
		routingContext[k] = vs[0]
	}
	routingContext[routingAddressKey] = address
	return routingContext, nil
}

// sessionRouter resolves the server addresses a unit of work should run on
// and adapts when the cluster topology changes.
type sessionRouter interface {
	GetOrUpdateReaders(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) ([]string, error)
	GetOrUpdateWriters(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) ([]string, error)
	GetNameOfDefaultDatabase(ctx context.Context, bookmarks []string, impersonatedUser string, boltLogger log.BoltLogger) (string, error)
	Invalidate(database string)
	InvalidateWriter(database, server string)
	InvalidateServer(server string)
	CleanUp()
}

type driver struct {
	target         *url.URL
	config         *Config
	auth           AuthToken
	encrypted      bool
	skipVerify     bool
	routingContext map[string]string
	pool           *pool.Pool
	router         sessionRouter
	log            log.Logger
	logId          string
	closed         bool
	closedMut      sync.Mutex
}

func (d *driver) Target() url.URL {
	return *d.target
}

func (d *driver) IsEncrypted() bool {
	return d.encrypted
}

func (d *driver) NewSession(_ context.Context, config SessionConfig) Session {
	d.closedMut.Lock()
	closed := d.closed
	d.closedMut.Unlock()
	if closed {
		return &erroredSession{err: &UsageError{Message: "Trying to create session on closed driver"}}
	}
	return newSession(d.config, config, d.router, d.pool, d.log)
}

// connect dials, optionally wraps in TLS and performs the Bolt handshake.
// This is what the pool calls for every new connection.
func (d *driver) connect(ctx context.Context, address string, boltLogger log.BoltLogger) (db.Connection, error) {
	dialer := net.Dialer{Timeout: d.config.SocketConnectTimeout}
	if !d.config.SocketKeepalive {
		dialer.KeepAlive = -1
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	if d.encrypted {
		serverName, _, _ := net.SplitHostPort(address)
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         serverName,
			RootCAs:            d.config.RootCAs,
			InsecureSkipVerify: d.skipVerify,
		})
		if err = tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, &errorutil.ConnectivityError{Inner: err}
		}
		conn = tlsConn
	}

	boltConn, err := bolt.Connect(
		ctx,
		address,
		conn,
		d.auth.tokens,
		d.config.UserAgent,
		d.routingContext,
		d.log,
		boltLogger,
		time.Now,
		0,
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return boltConn, nil
}

// VerifyConnectivity verifies that the driver can connect to a remote server
// or cluster by acquiring a read connection and releasing it again.
func (d *driver) VerifyConnectivity(ctx context.Context) error {
	session := d.NewSession(ctx, SessionConfig{AccessMode: AccessModeRead})
	defer func() { _ = session.Close(ctx) }()
	result, err := session.Run(ctx, "RETURN 1 AS n", nil)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func (d *driver) Close(ctx context.Context) error {
	d.closedMut.Lock()
	defer d.closedMut.Unlock()
	if d.closed {
		return nil
	}
	d.pool.Close(ctx)
	d.closed = true
	d.log.Infof(log.Driver, d.logId, "Closed")
	return nil
}

// directRouter fills the router contract for single instance connections,
// every role resolves to the one configured address.
type directRouter struct {
	address string
}

func (r *directRouter) GetOrUpdateReaders(context.Context, []string, string, string, log.BoltLogger) ([]string, error) {
	return []string{r.address}, nil
}

func (r *directRouter) GetOrUpdateWriters(context.Context, []string, string, string, log.BoltLogger) ([]string, error) {
	return []string{r.address}, nil
}

func (r *directRouter) GetNameOfDefaultDatabase(context.Context, []string, string, log.BoltLogger) (string, error) {
	return "", nil
}

func (r *directRouter) Invalidate(string) {}

func (r *directRouter) InvalidateWriter(string, string) {}

func (r *directRouter) InvalidateServer(string) {}

func (r *directRouter) CleanUp() {}
