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
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/pool"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/retry"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// AccessMode defines modes that routing driver decides to which cluster
// member a connection should be opened.
type AccessMode int

const (
	// AccessModeWrite tells the driver to use a connection to 'Leader'
	AccessModeWrite AccessMode = 0
	// AccessModeRead tells the driver to use a connection to one of the
	// 'Follower' or 'Read Replica'.
	AccessModeRead AccessMode = 1
)

// SessionConfig is used to configure a new session, its zero value uses
// safe defaults.
type SessionConfig struct {
	// AccessMode used when using Session.Run and explicit transactions.
	// Used to route query to read or write servers when running in a
	// cluster. Session.ExecuteRead and Session.ExecuteWrite are not
	// affected by this setting.
	AccessMode AccessMode
	// Bookmarks are the initial bookmarks used to ensure that the executing
	// server is at least up to date to the point represented by the latest
	// of the provided bookmarks.
	Bookmarks Bookmarks
	// DatabaseName sets the target database name for the queries executed
	// within the session created with this configuration. Empty selects
	// the user's home database.
	DatabaseName string
	// FetchSize defines how many records to pull from server in each batch,
	// FetchDefault uses the driver configuration.
	FetchSize int
	// BoltLogger traces the Bolt protocol messages of this session.
	BoltLogger log.BoltLogger
	// ImpersonatedUser sets the Neo4j user that the session will be acting
	// as. If not set, the user used to authenticate the driver is used.
	// The authenticated user must have the permission to impersonate.
	ImpersonatedUser string
}

// Session represents a logical connection (which is not tied to a physical
// connection) to the server. Not safe for concurrent use.
type Session interface {
	// LastBookmarks returns the bookmarks received following the last
	// successfully completed transaction.
	LastBookmarks() Bookmarks
	// BeginTransaction starts a new explicit transaction on this session.
	BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (ExplicitTransaction, error)
	// ExecuteRead executes the given unit of work in an AccessModeRead
	// transaction with retry logic in place.
	ExecuteRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// ExecuteWrite executes the given unit of work in an AccessModeWrite
	// transaction with retry logic in place.
	ExecuteWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error)
	// Run executes an auto-commit statement and returns a result.
	Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*TransactionConfig)) (Result, error)
	// Close closes any open resources and marks this session as unusable.
	Close(ctx context.Context) error
}

type session struct {
	driverConfig  *Config
	defaultMode   db.AccessMode
	bookmarks     *sessionBookmarks
	databaseName  string
	resolveHomeDb bool
	impersonated  string
	pool          *pool.Pool
	router        sessionRouter
	explicitTx    *explicitTransaction
	autocommit    *result
	fetchSize     int
	boltLogger    log.BoltLogger
	log           log.Logger
	logId         string
	throttleTime  time.Duration
	closed        bool
}

var sessionCounter uint32

func newSession(driverConfig *Config, sessConfig SessionConfig, router sessionRouter, p *pool.Pool, logger log.Logger) *session {
	fetchSize := sessConfig.FetchSize
	if fetchSize == FetchDefault {
		fetchSize = driverConfig.FetchSize
	}
	id := atomic.AddUint32(&sessionCounter, 1)
	s := &session{
		driverConfig:  driverConfig,
		defaultMode:   db.AccessMode(sessConfig.AccessMode),
		bookmarks:     newSessionBookmarks(sessConfig.Bookmarks),
		databaseName:  sessConfig.DatabaseName,
		resolveHomeDb: sessConfig.DatabaseName == "",
		impersonated:  sessConfig.ImpersonatedUser,
		pool:          p,
		router:        router,
		fetchSize:     fetchSize,
		boltLogger:    sessConfig.BoltLogger,
		log:           logger,
		logId:         fmt.Sprintf("session-%d", id),
		throttleTime:  driverConfig.MaxTransactionRetryTime,
	}
	s.log.Debugf(log.Session, s.logId, "Created")
	return s
}

func (s *session) LastBookmarks() Bookmarks {
	return s.bookmarks.currentBookmarks()
}

func (s *session) Run(ctx context.Context, cypher string, params map[string]any, configurers ...func(*TransactionConfig)) (Result, error) {
	if s.closed {
		return nil, &UsageError{Message: "Trying to run query on closed session"}
	}
	if s.explicitTx != nil {
		return nil, &UsageError{Message: "Trying to run auto commit transaction while in explicit transaction"}
	}
	if err := s.detachAutocommit(ctx); err != nil {
		return nil, wrapError(err)
	}

	config := TransactionConfig{}
	for _, c := range configurers {
		c(&config)
	}

	conn, err := s.getConnection(ctx, s.defaultMode)
	if err != nil {
		return nil, wrapError(err)
	}

	stream, err := conn.Run(ctx, db.Command{
		Cypher:    cypher,
		Params:    params,
		FetchSize: s.fetchSize,
	}, db.TxConfig{
		Mode:             s.defaultMode,
		Bookmarks:        s.bookmarks.currentBookmarks(),
		Timeout:          config.Timeout,
		Meta:             config.Metadata,
		ImpersonatedUser: s.impersonated,
	})
	if err != nil {
		s.pool.Return(ctx, conn)
		return nil, wrapError(err)
	}

	s.autocommit = newResult(conn, stream, cypher, params)
	return s.autocommit, nil
}

func (s *session) BeginTransaction(ctx context.Context, configurers ...func(*TransactionConfig)) (ExplicitTransaction, error) {
	if s.closed {
		return nil, &UsageError{Message: "Trying to begin transaction on closed session"}
	}
	if s.explicitTx != nil {
		return nil, &UsageError{Message: "Trying to begin transaction while already in transaction"}
	}
	if err := s.detachAutocommit(ctx); err != nil {
		return nil, wrapError(err)
	}

	config := TransactionConfig{}
	for _, c := range configurers {
		c(&config)
	}

	conn, err := s.getConnection(ctx, s.defaultMode)
	if err != nil {
		return nil, wrapError(err)
	}

	txHandle, err := conn.TxBegin(ctx, db.TxConfig{
		Mode:             s.defaultMode,
		Bookmarks:        s.bookmarks.currentBookmarks(),
		Timeout:          config.Timeout,
		Meta:             config.Metadata,
		ImpersonatedUser: s.impersonated,
	})
	if err != nil {
		s.pool.Return(ctx, conn)
		return nil, wrapError(err)
	}

	tx := &explicitTransaction{
		conn:      conn,
		txHandle:  txHandle,
		fetchSize: s.fetchSize,
		onClosed: func(tx *explicitTransaction) {
			s.retrieveBookmark(tx.conn)
			s.pool.Return(ctx, tx.conn)
			s.explicitTx = nil
		},
	}
	s.explicitTx = tx
	return tx, nil
}

func (s *session) ExecuteRead(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	return s.runRetriable(ctx, db.ReadMode, work, configurers...)
}

func (s *session) ExecuteWrite(ctx context.Context, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	return s.runRetriable(ctx, db.WriteMode, work, configurers...)
}

func (s *session) runRetriable(ctx context.Context, mode db.AccessMode, work ManagedTransactionWork, configurers ...func(*TransactionConfig)) (any, error) {
	if s.closed {
		return nil, &UsageError{Message: "Trying to run transaction on closed session"}
	}
	if s.explicitTx != nil {
		return nil, &UsageError{Message: "Trying to run retryable transaction while in explicit transaction"}
	}
	if err := s.detachAutocommit(ctx); err != nil {
		return nil, wrapError(err)
	}

	config := TransactionConfig{}
	for _, c := range configurers {
		c(&config)
	}

	state := retry.State{
		MaxTransactionRetryTime: s.throttleTime,
		Log:                     s.log,
		LogName:                 log.Session,
		LogId:                   s.logId,
		Now:                     time.Now,
		Sleep:                   time.Sleep,
		Throttle:                retry.Throttler(time.Second),
		Router:                  s.router,
		DatabaseName:            s.databaseName,
	}
	for {
		x, err := s.executeTransactionFunction(ctx, mode, config, &state, work)
		if err == nil {
			return x, nil
		}
		if !state.Continue() {
			return nil, wrapError(state.ProduceError())
		}
	}
}

func (s *session) executeTransactionFunction(
	ctx context.Context,
	mode db.AccessMode,
	config TransactionConfig,
	state *retry.State,
	work ManagedTransactionWork,
) (any, error) {
	conn, err := s.getConnection(ctx, mode)
	if err != nil {
		state.OnFailure(ctx, err, conn, false)
		return nil, err
	}
	defer s.pool.Return(ctx, conn)

	txHandle, err := conn.TxBegin(ctx, db.TxConfig{
		Mode:             mode,
		Bookmarks:        s.bookmarks.currentBookmarks(),
		Timeout:          config.Timeout,
		Meta:             config.Metadata,
		ImpersonatedUser: s.impersonated,
	})
	if err != nil {
		state.OnFailure(ctx, err, conn, false)
		return nil, err
	}

	tx := managedTransaction{conn: conn, txHandle: txHandle, fetchSize: s.fetchSize}
	x, err := work(&tx)
	if err != nil {
		// The work function is allowed to return a custom error without
		// rolling back itself.
		_ = conn.TxRollback(ctx, txHandle)
		state.OnFailure(ctx, err, conn, false)
		return nil, err
	}

	if err = conn.TxCommit(ctx, txHandle); err != nil {
		state.OnFailure(ctx, err, conn, true)
		return nil, err
	}
	s.retrieveBookmark(conn)
	return x, nil
}

// getServers resolves the candidate servers for the given mode.
func (s *session) getServers(ctx context.Context, mode db.AccessMode) ([]string, error) {
	if mode == db.ReadMode {
		return s.router.GetOrUpdateReaders(ctx, s.bookmarks.currentBookmarks(), s.databaseName, s.impersonated, s.boltLogger)
	}
	return s.router.GetOrUpdateWriters(ctx, s.bookmarks.currentBookmarks(), s.databaseName, s.impersonated, s.boltLogger)
}

// getConnection borrows a connection to a server that can serve the given
// mode, within the configured acquisition timeout.
func (s *session) getConnection(ctx context.Context, mode db.AccessMode) (db.Connection, error) {
	if s.driverConfig.ConnectionAcquisitionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.driverConfig.ConnectionAcquisitionTimeout)
		defer cancel()
	}

	if err := s.resolveHomeDatabase(ctx); err != nil {
		return nil, err
	}
	servers, err := s.getServers(ctx, mode)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.Borrow(ctx, servers, true, s.boltLogger)
	if err != nil {
		return nil, err
	}
	conn.SelectDatabase(s.databaseName)
	return conn, nil
}

// resolveHomeDatabase pins the session to the user's home database on first
// use, later topology changes no longer move the session.
func (s *session) resolveHomeDatabase(ctx context.Context) error {
	if !s.resolveHomeDb {
		return nil
	}
	defaultDb, err := s.router.GetNameOfDefaultDatabase(ctx, s.bookmarks.currentBookmarks(), s.impersonated, s.boltLogger)
	if err != nil {
		return err
	}
	if defaultDb != "" {
		s.log.Debugf(log.Session, s.logId, "Resolved home database, using db '%s'", defaultDb)
		s.databaseName = defaultDb
	}
	s.resolveHomeDb = false
	return nil
}

func (s *session) retrieveBookmark(conn db.Connection) {
	if conn != nil {
		s.bookmarks.replaceBookmarks(conn.Bookmark())
	}
}

// detachAutocommit buffers the pending auto-commit result, if any, and
// returns its connection to the pool.
func (s *session) detachAutocommit(ctx context.Context) error {
	res := s.autocommit
	if res == nil {
		return nil
	}
	s.autocommit = nil
	err := res.buffer(ctx)
	s.retrieveBookmark(res.conn)
	s.pool.Return(ctx, res.conn)
	return err
}

func (s *session) Close(ctx context.Context) error {
	var txErr error
	if s.explicitTx != nil {
		txErr = s.explicitTx.Close(ctx)
	}
	bufErr := s.detachAutocommit(ctx)
	s.closed = true
	s.log.Debugf(log.Session, s.logId, "Closed")
	s.router.CleanUp()
	if txErr != nil {
		return txErr
	}
	return wrapError(bufErr)
}

// erroredSession is handed out by a closed driver, every method reports the
// same error.
type erroredSession struct {
	err error
}

func (s *erroredSession) LastBookmarks() Bookmarks { return nil }

func (s *erroredSession) BeginTransaction(context.Context, ...func(*TransactionConfig)) (ExplicitTransaction, error) {
	return nil, s.err
}

func (s *erroredSession) ExecuteRead(context.Context, ManagedTransactionWork, ...func(*TransactionConfig)) (any, error) {
	return nil, s.err
}

func (s *erroredSession) ExecuteWrite(context.Context, ManagedTransactionWork, ...func(*TransactionConfig)) (any, error) {
	return nil, s.err
}

func (s *erroredSession) Run(context.Context, string, map[string]any, ...func(*TransactionConfig)) (Result, error) {
	return nil, s.err
}

func (s *erroredSession) Close(context.Context) error {
	return s.err
}
