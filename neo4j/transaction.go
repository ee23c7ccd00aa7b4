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
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
)

// TransactionConfig holds the settings applied to a single transaction.
type TransactionConfig struct {
	// Timeout after which the server aborts the transaction. Zero leaves
	// the server's default in place.
	Timeout time.Duration
	// Metadata attached to the transaction, visible in server side query
	// listings.
	Metadata map[string]any
}

// WithTxTimeout returns a configuration function setting the transaction
// timeout.
func WithTxTimeout(timeout time.Duration) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Timeout = timeout
	}
}

// WithTxMetadata returns a configuration function attaching metadata to the
// transaction.
func WithTxMetadata(metadata map[string]any) func(*TransactionConfig) {
	return func(config *TransactionConfig) {
		config.Metadata = metadata
	}
}

// ExplicitTransaction is a transaction the application commits or rolls back
// itself.
type ExplicitTransaction interface {
	// Run executes a statement on this transaction and returns a result.
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	// Commit commits the transaction.
	Commit(ctx context.Context) error
	// Rollback rolls back the transaction.
	Rollback(ctx context.Context) error
	// Close rolls back the transaction if it was not already committed or
	// rolled back.
	Close(ctx context.Context) error
}

// ManagedTransaction is the transaction handed to the work function of
// ExecuteRead and ExecuteWrite. Commit and rollback are managed by the
// driver, based on whether the work function returns an error.
type ManagedTransaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// ManagedTransactionWork is a unit of work run inside a managed transaction.
// It may be invoked more than once, so it must not have side effects beyond
// the transaction itself.
type ManagedTransactionWork func(tx ManagedTransaction) (any, error)

type transactionState int

const (
	transactionOpen transactionState = iota
	transactionCommitted
	transactionRolledBack
	transactionBroken
)

// explicitTransaction. Methods must be called from the same goroutine that
// created it, like everything session scoped.
type explicitTransaction struct {
	conn      db.Connection
	txHandle  db.TxHandle
	state     transactionState
	onClosed  func(*explicitTransaction)
	fetchSize int
	res       *result
}

func (tx *explicitTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	if err := tx.assertOpen(); err != nil {
		return nil, err
	}
	stream, err := tx.conn.RunTx(ctx, tx.txHandle, db.Command{
		Cypher:    cypher,
		Params:    params,
		FetchSize: tx.fetchSize,
	})
	if err != nil {
		return nil, wrapError(err)
	}
	tx.res = newResult(tx.conn, stream, cypher, params)
	return tx.res, nil
}

func (tx *explicitTransaction) Commit(ctx context.Context) error {
	if err := tx.assertOpen(); err != nil {
		return err
	}
	if err := tx.buffer(ctx); err != nil {
		tx.state = transactionBroken
		tx.onClosed(tx)
		return err
	}
	err := tx.conn.TxCommit(ctx, tx.txHandle)
	if err != nil {
		tx.state = transactionBroken
	} else {
		tx.state = transactionCommitted
	}
	tx.onClosed(tx)
	return wrapError(err)
}

func (tx *explicitTransaction) Rollback(ctx context.Context) error {
	if err := tx.assertOpen(); err != nil {
		return err
	}
	var err error
	if tx.conn.IsAlive() && !tx.conn.HasFailed() {
		if err = tx.buffer(ctx); err == nil {
			err = tx.conn.TxRollback(ctx, tx.txHandle)
		}
	}
	if err != nil {
		tx.state = transactionBroken
	} else {
		tx.state = transactionRolledBack
	}
	tx.onClosed(tx)
	return wrapError(err)
}

func (tx *explicitTransaction) Close(ctx context.Context) error {
	if tx.state != transactionOpen {
		return nil
	}
	return tx.Rollback(ctx)
}

// buffer detaches the pending result, if any, from the connection so that
// commit and rollback can take over the wire.
func (tx *explicitTransaction) buffer(ctx context.Context) error {
	if tx.res == nil {
		return nil
	}
	err := tx.conn.Buffer(ctx, tx.res.stream)
	tx.res = nil
	return err
}

func (tx *explicitTransaction) assertOpen() error {
	switch tx.state {
	case transactionOpen:
		return nil
	case transactionCommitted, transactionRolledBack:
		return &UsageError{Message: errorutil.InvalidTransactionError}
	default:
		return &UsageError{Message: "transaction is broken and can no longer be used"}
	}
}

// managedTransaction wraps the connection level transaction for use inside
// retryable work functions.
type managedTransaction struct {
	conn      db.Connection
	txHandle  db.TxHandle
	fetchSize int
}

func (tx *managedTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	stream, err := tx.conn.RunTx(ctx, tx.txHandle, db.Command{
		Cypher:    cypher,
		Params:    params,
		FetchSize: tx.fetchSize,
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return newResult(tx.conn, stream, cypher, params), nil
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	return errorutil.WrapError(err)
}
