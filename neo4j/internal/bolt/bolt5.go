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

package bolt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

const (
	bolt5Unauthorized = iota // Not authenticated
	bolt5Ready               // Ready for use
	bolt5Streaming           // Auto-commit query streaming records
	bolt5Tx                  // In an explicit transaction
	bolt5StreamingTx         // In an explicit transaction with a streaming query
	bolt5Failed              // Recoverable protocol or database error
	bolt5Dead                // Connection broken, close and discard
)

// DefaultFetchSize is the number of records requested per PULL when the
// caller does not specify a fetch size.
const DefaultFetchSize = 1000

// stream tracks one open or buffered result stream. Records received while
// the stream is not the one being consumed pile up in buf.
type stream struct {
	keys      []string
	fetchSize int
	qid       int64
	tfirst    int64
	buf       []*db.Record
	sum       *db.Summary
	err       error
	// atBatchEnd is set when the last PULL batch completed with more
	// records available on the server.
	atBatchEnd bool
}

func (s *stream) pop() *db.Record {
	if len(s.buf) == 0 {
		return nil
	}
	rec := s.buf[0]
	s.buf = s.buf[1:]
	return rec
}

func (s *stream) push(rec *db.Record) {
	rec.Keys = s.keys
	s.buf = append(s.buf, rec)
}

type bolt5 struct {
	state         int
	txId          db.TxHandle
	currStream    *stream
	conn          net.Conn
	serverName    string
	queue         messageQueue
	connId        string
	logId         string
	serverVersion string
	bookmark      string
	databaseName  string
	err           error
	minor         int
	idleDate      time.Time
	birthDate     time.Time
	log           log.Logger
	now           func() time.Time
	in            *incoming
	out           *outgoing
}

func NewBolt5(
	serverName string,
	conn net.Conn,
	logger log.Logger,
	boltLogger log.BoltLogger,
	timer func() time.Time,
	connReadTimeout time.Duration,
) *bolt5 {
	if timer == nil {
		timer = time.Now
	}
	now := timer()
	b := &bolt5{
		state:      bolt5Unauthorized,
		conn:       conn,
		serverName: serverName,
		birthDate:  now,
		idleDate:   now,
		log:        logger,
		now:        timer,
	}
	b.in = &incoming{
		hyd:             hydrator{boltLogger: boltLogger},
		connReadTimeout: connReadTimeout,
	}
	b.out = newOutgoing(
		func(err error) {
			b.log.Error(log.Bolt5, b.logId, err)
			b.state = bolt5Dead
			b.err = err
		},
		boltLogger,
		"",
	)
	b.queue = newMessageQueue(conn, b.in, b.out, b.onIoError)
	return b
}

func (b *bolt5) ServerName() string {
	return b.serverName
}

func (b *bolt5) ServerVersion() string {
	return b.serverVersion
}

func (b *bolt5) Version() db.ProtocolVersion {
	return db.ProtocolVersion{Major: 5, Minor: b.minor}
}

func (b *bolt5) IsAlive() bool {
	return b.state != bolt5Dead
}

func (b *bolt5) HasFailed() bool {
	return b.state == bolt5Failed
}

func (b *bolt5) Birthdate() time.Time {
	return b.birthDate
}

func (b *bolt5) IdleDate() time.Time {
	return b.idleDate
}

func (b *bolt5) Bookmark() string {
	return b.bookmark
}

func (b *bolt5) SelectDatabase(database string) {
	b.databaseName = database
}

func (b *bolt5) Database() string {
	return b.databaseName
}

// onIoError transitions the connection to dead. Transport errors leave the
// conversation in an unknown position, there is no way back.
func (b *bolt5) onIoError(_ context.Context, err error) {
	if b.state != bolt5Failed && b.state != bolt5Dead {
		b.log.Error(log.Bolt5, b.logId, err)
	}
	b.state = bolt5Dead
	b.err = err
}

// onFailure handles a FAILURE response, transitioning to the failed state.
// The server expects a RESET before anything else on this connection.
func (b *bolt5) onFailure(_ context.Context, failure *db.Neo4jError) {
	b.err = failure
	b.state = bolt5Failed
	b.log.Error(log.Bolt5, b.logId, failure)
}

func (b *bolt5) Connect(
	ctx context.Context,
	minor int,
	auth map[string]any,
	userAgent string,
	routingContext map[string]string,
) error {
	if err := b.assertState(bolt5Unauthorized); err != nil {
		return err
	}
	b.minor = minor
	b.in.hyd.boltMinor = minor

	hello := map[string]any{
		"user_agent": userAgent,
	}
	if routingContext != nil {
		routing := make(map[string]any, len(routingContext))
		for k, v := range routingContext {
			routing[k] = v
		}
		hello["routing"] = routing
	}
	if minor >= 3 {
		hello["bolt_agent"] = map[string]any{
			"product": userAgent,
		}
	}
	if minor == 0 {
		// There is no LOGON on 5.0, authentication rides along in HELLO.
		for k, v := range auth {
			hello[k] = v
		}
	}

	helloHandler := responseHandler{
		onSuccess: b.helloSuccess,
		onFailure: b.onFailure,
	}
	b.queue.appendHello(hello, helloHandler)
	if minor >= 1 {
		b.queue.appendLogon(auth, responseHandler{onFailure: b.onFailure})
	}
	b.queue.send(ctx)
	if err := b.queue.receiveAll(ctx); err != nil {
		return err
	}
	if b.err != nil {
		// Authentication failure, server closes the connection after this.
		return b.err
	}

	b.state = bolt5Ready
	b.log.Infof(log.Bolt5, b.logId, "Connected")
	return nil
}

func (b *bolt5) helloSuccess(hello *success) {
	b.connId = hello.connectionId()
	b.serverVersion = hello.server()

	connectionLogId := fmt.Sprintf("%s@%s", b.connId, b.serverName)
	b.logId = connectionLogId
	b.out.logId = connectionLogId
	b.in.hyd.logId = connectionLogId

	if hints := hello.configurationHints(); hints != nil {
		if seconds, ok := hints["connection.recv_timeout_seconds"].(int64); ok && seconds > 0 {
			b.in.connReadTimeout = time.Duration(seconds) * time.Second
		}
	}
}

func (b *bolt5) TxBegin(ctx context.Context, txConfig db.TxConfig) (db.TxHandle, error) {
	// A previous stream of an auto-commit query may still be open, buffer
	// it up to get back to ready.
	if b.state == bolt5Streaming {
		if err := b.bufferStream(ctx); err != nil {
			return 0, err
		}
	}
	if err := b.assertState(bolt5Ready); err != nil {
		return 0, err
	}

	b.queue.appendBegin(b.txMeta(txConfig), responseHandler{onFailure: b.onFailure})
	b.queue.send(ctx)
	if err := b.queue.receiveAll(ctx); err != nil {
		return 0, err
	}
	if b.err != nil {
		return 0, b.err
	}

	b.state = bolt5Tx
	b.txId = db.TxHandle(time.Now().UnixNano())
	return b.txId, nil
}

func (b *bolt5) txMeta(txConfig db.TxConfig) map[string]any {
	meta := map[string]any{}
	if len(txConfig.Bookmarks) > 0 {
		meta["bookmarks"] = txConfig.Bookmarks
	}
	if txConfig.Timeout > 0 {
		ms := txConfig.Timeout.Milliseconds()
		// Round sub-millisecond timeouts up, zero would mean no timeout.
		if txConfig.Timeout.Nanoseconds()%int64(time.Millisecond) > 0 {
			ms++
		}
		meta["tx_timeout"] = ms
	}
	if len(txConfig.Meta) > 0 {
		meta["tx_metadata"] = txConfig.Meta
	}
	if txConfig.Mode == db.ReadMode {
		meta["mode"] = "r"
	}
	if b.databaseName != db.DefaultDatabase {
		meta["db"] = b.databaseName
	}
	if txConfig.ImpersonatedUser != "" {
		meta["imp_user"] = txConfig.ImpersonatedUser
	}
	return meta
}

// assertTxHandle guards against stale transaction objects being used after
// the connection has moved on.
func (b *bolt5) assertTxHandle(h1, h2 db.TxHandle) error {
	if h1 != h2 {
		err := errors.New(errorutil.InvalidTransactionError)
		b.log.Error(log.Bolt5, b.logId, err)
		return err
	}
	return nil
}

func (b *bolt5) assertState(allowed ...int) error {
	for _, a := range allowed {
		if b.state == a {
			return nil
		}
	}
	err := fmt.Errorf("invalid state %d, expected: %v", b.state, allowed)
	b.log.Error(log.Bolt5, b.logId, err)
	return err
}

func (b *bolt5) TxCommit(ctx context.Context, txh db.TxHandle) error {
	if err := b.assertTxHandle(b.txId, txh); err != nil {
		return err
	}

	// Consume any pending stream before committing.
	if b.state == bolt5StreamingTx {
		if err := b.bufferStream(ctx); err != nil {
			return err
		}
	}
	if err := b.assertState(bolt5Tx); err != nil {
		return err
	}

	b.queue.appendCommit(responseHandler{
		onSuccess: func(commit *success) {
			if bookmark := commit.bookmark(); bookmark != "" {
				b.bookmark = bookmark
			}
		},
		onFailure: b.onFailure,
	})
	b.queue.send(ctx)
	if err := b.queue.receiveAll(ctx); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	b.state = bolt5Ready
	return nil
}

func (b *bolt5) TxRollback(ctx context.Context, txh db.TxHandle) error {
	if err := b.assertTxHandle(b.txId, txh); err != nil {
		return err
	}

	if b.state == bolt5StreamingTx {
		if err := b.bufferStream(ctx); err != nil {
			return err
		}
	}
	if err := b.assertState(bolt5Tx); err != nil {
		return err
	}

	b.queue.appendRollback(responseHandler{onFailure: b.onFailure})
	b.queue.send(ctx)
	if err := b.queue.receiveAll(ctx); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	b.state = bolt5Ready
	return nil
}

func (b *bolt5) Run(ctx context.Context, cmd db.Command, txConfig db.TxConfig) (db.StreamHandle, error) {
	if b.state == bolt5Streaming {
		if err := b.bufferStream(ctx); err != nil {
			return nil, err
		}
	}
	if err := b.assertState(bolt5Ready); err != nil {
		return nil, err
	}
	stream, err := b.run(ctx, cmd.Cypher, cmd.Params, cmd.FetchSize, b.txMeta(txConfig))
	if err != nil {
		return nil, err
	}
	b.state = bolt5Streaming
	return stream, nil
}

func (b *bolt5) RunTx(ctx context.Context, txh db.TxHandle, cmd db.Command) (db.StreamHandle, error) {
	if err := b.assertTxHandle(b.txId, txh); err != nil {
		return nil, err
	}
	if b.state == bolt5StreamingTx {
		if err := b.bufferStream(ctx); err != nil {
			return nil, err
		}
	}
	if err := b.assertState(bolt5Tx); err != nil {
		return nil, err
	}
	stream, err := b.run(ctx, cmd.Cypher, cmd.Params, cmd.FetchSize, nil)
	if err != nil {
		return nil, err
	}
	b.state = bolt5StreamingTx
	return stream, nil
}

// run sends RUN and the first PULL pipelined and waits for the RUN response
// so that the record keys are known when it returns.
func (b *bolt5) run(ctx context.Context, cypher string, params map[string]any, fetchSize int, meta map[string]any) (*stream, error) {
	switch {
	case fetchSize == 0:
		fetchSize = DefaultFetchSize
	case fetchSize < 0:
		// Stream everything in one batch.
		fetchSize = -1
	}
	stream := &stream{fetchSize: fetchSize, qid: -1}

	b.queue.appendRun(cypher, params, meta, responseHandler{
		onSuccess: func(run *success) {
			stream.keys = run.fields()
			stream.tfirst = run.tfirst()
			stream.qid = run.qid()
		},
		onFailure: b.onFailure,
	})
	b.queue.appendPullN(fetchSize, b.streamHandler(stream))
	b.queue.send(ctx)

	// Only await the RUN response, records are fetched lazily.
	if err := b.queue.receive(ctx); err != nil {
		// FAILURE on RUN means the pipelined PULL will come back IGNORED.
		if b.state == bolt5Failed {
			if drainErr := b.drainResponses(ctx); drainErr != nil {
				return nil, drainErr
			}
		}
		return nil, err
	}

	b.currStream = stream
	return stream, nil
}

// streamHandler reacts to the responses of a PULL or DISCARD for the given
// stream.
func (b *bolt5) streamHandler(s *stream) responseHandler {
	return responseHandler{
		onRecord: func(rec *db.Record) {
			s.push(rec)
		},
		onSuccess: func(pull *success) {
			if pull.hasMore() {
				s.atBatchEnd = true
				return
			}
			sum := pull.summary()
			sum.ServerName = b.serverName
			sum.Agent = b.serverVersion
			sum.Major = 5
			sum.Minor = b.minor
			sum.TFirst = s.tfirst
			s.sum = sum
			if sum.Bookmark != "" {
				b.bookmark = sum.Bookmark
			}
			b.streamEnded()
		},
		onFailure: func(ctx context.Context, failure *db.Neo4jError) {
			s.err = failure
			b.onFailure(ctx, failure)
		},
		onIgnored: func(*ignored) {
			s.err = errors.New("stream interrupted while the connection was in a failed state")
		},
	}
}

// streamEnded restores the non-streaming state once the current stream has
// received its summary.
func (b *bolt5) streamEnded() {
	b.currStream = nil
	switch b.state {
	case bolt5Streaming:
		b.state = bolt5Ready
	case bolt5StreamingTx:
		b.state = bolt5Tx
	}
}

func (b *bolt5) Keys(streamHandle db.StreamHandle) ([]string, error) {
	stream, ok := streamHandle.(*stream)
	if !ok {
		return nil, errors.New("invalid stream handle")
	}
	return stream.keys, nil
}

func (b *bolt5) Next(ctx context.Context, streamHandle db.StreamHandle) (*db.Record, *db.Summary, error) {
	stream, ok := streamHandle.(*stream)
	if !ok {
		return nil, nil, errors.New("invalid stream handle")
	}

	for {
		if rec := stream.pop(); rec != nil {
			return rec, nil, nil
		}
		if stream.sum != nil {
			return nil, stream.sum, nil
		}
		if stream.err != nil {
			return nil, nil, stream.err
		}
		if err := b.advanceStream(ctx, stream); err != nil {
			return nil, nil, err
		}
	}
}

// advanceStream receives one message for the stream, requesting the next
// batch first when the previous one has been exhausted.
func (b *bolt5) advanceStream(ctx context.Context, s *stream) error {
	if s != b.currStream {
		// Fully buffered or ended, nothing on the wire belongs to it.
		if s.err == nil && s.sum == nil {
			s.err = errors.New("stream lost while another query was running")
		}
		return nil
	}
	if s.atBatchEnd {
		s.atBatchEnd = false
		b.queue.appendPullNQid(s.fetchSize, s.qid, b.streamHandler(s))
		b.queue.send(ctx)
	}
	if err := b.queue.receive(ctx); err != nil {
		if s.err == nil {
			s.err = err
		}
		return err
	}
	b.idleDate = b.now()
	return nil
}

// bufferStream pulls the remainder of the current stream into memory so that
// the connection can be used for something else while the records remain
// retrievable.
func (b *bolt5) bufferStream(ctx context.Context) error {
	s := b.currStream
	if s == nil {
		return nil
	}
	for s.sum == nil && s.err == nil {
		if err := b.advanceStream(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *bolt5) Buffer(ctx context.Context, streamHandle db.StreamHandle) error {
	stream, ok := streamHandle.(*stream)
	if !ok {
		return errors.New("invalid stream handle")
	}
	if stream != b.currStream {
		return nil
	}
	return b.bufferStream(ctx)
}

func (b *bolt5) Consume(ctx context.Context, streamHandle db.StreamHandle) (*db.Summary, error) {
	stream, ok := streamHandle.(*stream)
	if !ok {
		return nil, errors.New("invalid stream handle")
	}

	if stream == b.currStream {
		if err := b.discardStream(ctx, stream); err != nil {
			return nil, err
		}
	}
	stream.buf = nil
	if stream.err != nil {
		return nil, stream.err
	}
	return stream.sum, nil
}

// discardStream tells the server to throw away the rest of the stream
// instead of transferring unwanted records.
func (b *bolt5) discardStream(ctx context.Context, s *stream) error {
	// Drain the current batch first, a DISCARD is only valid between
	// batches.
	for s.sum == nil && s.err == nil && !s.atBatchEnd {
		if err := b.advanceStream(ctx, s); err != nil {
			return err
		}
	}
	if s.sum != nil || s.err != nil {
		return nil
	}

	s.atBatchEnd = false
	b.queue.appendDiscardNQid(-1, s.qid, b.streamHandler(s))
	b.queue.send(ctx)
	for s.sum == nil && s.err == nil {
		if err := b.queue.receive(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Reset brings the connection back to the ready state unless it is already
// there or beyond saving.
func (b *bolt5) Reset(ctx context.Context) {
	defer func() {
		b.log.Debugf(log.Bolt5, b.logId, "Resetting connection internal state")
		b.txId = 0
		b.currStream = nil
		b.err = nil
		b.databaseName = db.DefaultDatabase
	}()

	if b.state == bolt5Ready || b.state == bolt5Dead {
		return
	}
	b.ForceReset(ctx)
}

func (b *bolt5) ForceReset(ctx context.Context) {
	if b.state == bolt5Dead {
		return
	}

	// Throw away the handlers of anything in flight, their responses are
	// no longer of interest.
	for !b.queue.isEmpty() {
		if err := b.queue.receive(ctx); err != nil {
			return
		}
	}
	b.currStream = nil

	b.queue.appendReset(responseHandler{
		onSuccess: func(*success) {
			b.state = bolt5Ready
			b.err = nil
		},
		onFailure: b.onFailure,
	})
	b.queue.send(ctx)
	_ = b.queue.receiveAll(ctx)
}

func (b *bolt5) GetRoutingTable(
	ctx context.Context,
	routingContext map[string]string,
	bookmarks []string,
	database, impersonatedUser string,
) (*db.RoutingTable, error) {
	if err := b.assertState(bolt5Ready); err != nil {
		return nil, err
	}

	extras := map[string]any{}
	if database != db.DefaultDatabase {
		extras["db"] = database
	}
	if impersonatedUser != "" {
		extras["imp_user"] = impersonatedUser
	}

	var table *db.RoutingTable
	var tableErr error
	b.queue.appendRoute(routingContext, bookmarks, extras, responseHandler{
		onSuccess: func(route *success) {
			table, tableErr = route.routingTable()
		},
		onFailure: b.onFailure,
	})
	b.queue.send(ctx)
	if err := b.queue.receiveAll(ctx); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, b.err
	}
	if tableErr != nil {
		b.state = bolt5Dead
		b.err = tableErr
		return nil, tableErr
	}
	if database == db.DefaultDatabase {
		// The router resolved the home database, remember it.
		b.databaseName = table.DatabaseName
	}
	return table, nil
}

// drainResponses receives everything still pending without caring about the
// outcome, getting queue and connection back in sync.
func (b *bolt5) drainResponses(ctx context.Context) error {
	for !b.queue.isEmpty() {
		if err := b.queue.receive(ctx); err != nil {
			if b.state == bolt5Dead {
				return err
			}
		}
	}
	return nil
}

// Close sends a GOODBYE as a courtesy before closing the transport. Errors
// are pointless at this stage and ignored.
func (b *bolt5) Close(ctx context.Context) {
	b.log.Infof(log.Bolt5, b.logId, "Close")
	if b.state != bolt5Dead {
		b.queue.appendGoodbye()
		b.queue.send(ctx)
	}
	if err := b.conn.Close(); err != nil {
		b.log.Warnf(log.Bolt5, b.logId, "Failed to close connection: %s", err)
	}
	b.state = bolt5Dead
}
