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

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
)

// Record is one row of a result stream. Values are accessed by index or by
// key through Get.
type Record = db.Record

// ResultSummary is the server side metadata of a completed query.
type ResultSummary = db.Summary

// Result is a stream of records as produced by a single query. A result is
// bound to the connection of its session or transaction, consuming it after
// the owner has moved on only works if it was buffered.
type Result interface {
	// Keys returns the keys available on the result set.
	Keys() ([]string, error)
	// Next returns true only if there is a record to be processed, fetching
	// it from the server as necessary.
	Next(ctx context.Context) bool
	// Record returns the current record.
	Record() *Record
	// Err returns the latest error that caused this Next to return false.
	Err() error
	// Collect fetches all remaining records and returns them.
	Collect(ctx context.Context) ([]*Record, error)
	// Single returns the only record left in the stream, failing when the
	// stream holds zero or more than one record.
	Single(ctx context.Context) (*Record, error)
	// Consume discards all remaining records and returns the summary.
	Consume(ctx context.Context) (ResultSummary, error)
}

type result struct {
	conn    db.Connection
	stream  db.StreamHandle
	cypher  string
	params  map[string]any
	record  *Record
	summary *db.Summary
	err     error
}

func newResult(conn db.Connection, stream db.StreamHandle, cypher string, params map[string]any) *result {
	return &result{
		conn:   conn,
		stream: stream,
		cypher: cypher,
		params: params,
	}
}

func (r *result) Keys() ([]string, error) {
	return r.conn.Keys(r.stream)
}

func (r *result) Next(ctx context.Context) bool {
	r.record, r.summary, r.err = r.conn.Next(ctx, r.stream)
	return r.record != nil
}

func (r *result) Record() *Record {
	return r.record
}

func (r *result) Err() error {
	return wrapError(r.err)
}

func (r *result) Collect(ctx context.Context) ([]*Record, error) {
	var records []*Record
	for r.summary == nil && r.err == nil {
		r.record, r.summary, r.err = r.conn.Next(ctx, r.stream)
		if r.record != nil {
			records = append(records, r.record)
		}
	}
	if r.err != nil {
		return nil, wrapError(r.err)
	}
	return records, nil
}

func (r *result) Single(ctx context.Context) (*Record, error) {
	// The result may not be touched yet, or the caller already iterated
	// some of it. Only an untouched result with exactly one record is
	// valid here.
	r.record, r.summary, r.err = r.conn.Next(ctx, r.stream)
	if r.err != nil {
		return nil, wrapError(r.err)
	}
	if r.record == nil {
		r.err = &UsageError{Message: "result contains no more records"}
		return nil, r.err
	}

	single := r.record
	r.record, r.summary, r.err = r.conn.Next(ctx, r.stream)
	if r.err != nil {
		return nil, wrapError(r.err)
	}
	if r.record != nil {
		r.err = &UsageError{Message: "result contains more than one record"}
		// Drain the rest, the stream is useless to the caller now.
		_, _ = r.conn.Consume(ctx, r.stream)
		return nil, r.err
	}

	r.record = single
	return single, nil
}

func (r *result) Consume(ctx context.Context) (ResultSummary, error) {
	r.record = nil
	summary, err := r.conn.Consume(ctx, r.stream)
	if err != nil {
		return ResultSummary{}, wrapError(err)
	}
	r.summary = summary
	return *summary, nil
}

// buffer pulls the remaining records into memory, detaching the result from
// the connection.
func (r *result) buffer(ctx context.Context) error {
	return r.conn.Buffer(ctx, r.stream)
}
