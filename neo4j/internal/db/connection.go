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

// Package db defines the contract between the user facing session layer and
// the protocol implementation underneath it.
package db

import (
	"context"
	"time"
)

type AccessMode int

const (
	WriteMode AccessMode = 0
	ReadMode  AccessMode = 1
)

// DefaultDatabase is used when the caller has not selected a database and the
// home database has not been resolved yet.
const DefaultDatabase = ""

type TxHandle uint64
type StreamHandle any

type Command struct {
	Cypher    string
	Params    map[string]any
	FetchSize int
}

type TxConfig struct {
	Mode             AccessMode
	Bookmarks        []string
	Timeout          time.Duration
	Meta             map[string]any
	ImpersonatedUser string
}

type StatementType int

const (
	StatementTypeUnknown StatementType = iota
	StatementTypeRead
	StatementTypeReadWrite
	StatementTypeWrite
	StatementTypeSchemaWrite
)

type ProtocolVersion struct {
	Major int
	Minor int
}

type Record struct {
	Values []any
	Keys   []string
}

func (r *Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

type Summary struct {
	Bookmark      string
	StmntType     StatementType
	ServerName    string
	Agent         string
	Major         int
	Minor         int
	Counters      map[string]int
	TFirst        int64
	TLast         int64
	Notifications []Notification
}

type Notification struct {
	Code        string
	Title       string
	Description string
	Severity    string
}

// RoutingTable as reported by a router for one database. Never mutated after
// construction, always swapped whole.
type RoutingTable struct {
	TimeToLive   int
	DatabaseName string
	Routers      []string
	Readers      []string
	Writers      []string
}

// Connection is a logical connection to a database server speaking some
// negotiated version of the Bolt protocol. Implementations are not safe for
// concurrent use; exclusivity is enforced by the pool handing a connection to
// at most one session at a time.
type Connection interface {
	Connect(ctx context.Context, minor int, auth map[string]any, userAgent string, routingContext map[string]string) error
	TxBegin(ctx context.Context, txConfig TxConfig) (TxHandle, error)
	TxRollback(ctx context.Context, tx TxHandle) error
	TxCommit(ctx context.Context, tx TxHandle) error
	Run(ctx context.Context, cmd Command, txConfig TxConfig) (StreamHandle, error)
	RunTx(ctx context.Context, tx TxHandle, cmd Command) (StreamHandle, error)
	// Keys for the specified stream.
	Keys(streamHandle StreamHandle) ([]string, error)
	// Next moves to the next record in the stream. Returns either a record,
	// a summary (end of stream) or an error.
	Next(ctx context.Context, streamHandle StreamHandle) (*Record, *Summary, error)
	// Consume discards all records in the stream and returns the summary.
	Consume(ctx context.Context, streamHandle StreamHandle) (*Summary, error)
	// Buffer pulls the remainder of the stream into memory so that the
	// connection can be used for something else.
	Buffer(ctx context.Context, streamHandle StreamHandle) error
	// Bookmark returns the bookmark set by the latest committed transaction
	// or auto-commit query.
	Bookmark() string
	ServerName() string
	ServerVersion() string
	// IsAlive is false once a fatal error has happened on the connection.
	IsAlive() bool
	HasFailed() bool
	Birthdate() time.Time
	IdleDate() time.Time
	// Reset back to a clean state, aborting any ongoing transaction or
	// stream. Any error makes the connection dead.
	Reset(ctx context.Context)
	ForceReset(ctx context.Context)
	Close(ctx context.Context)
	GetRoutingTable(ctx context.Context, context map[string]string, bookmarks []string, database, impersonatedUser string) (*RoutingTable, error)
	Version() ProtocolVersion
	SelectDatabase(database string)
	Database() string
}
