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
	"container/list"
	"context"
	"io"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
)

// responseHandler reacts to one server response. Exactly one callback fires
// per received message; a nil callback means the caller does not care.
type responseHandler struct {
	onSuccess func(*success)
	onRecord  func(*db.Record)
	onFailure func(context.Context, *db.Neo4jError)
	onIgnored func(*ignored)
}

// messageQueue pairs pipelined requests with their responses in FIFO order.
// Requests append a handler when they are enqueued; receiving pops the
// front handler once its terminating response arrives (RECORD messages do
// not pop, a stream ends with SUCCESS or FAILURE).
type messageQueue struct {
	in       *incoming
	out      *outgoing
	handlers list.List

	err         error
	conn        io.ReadWriter
	onNextError func(context.Context, error)
}

func newMessageQueue(
	conn io.ReadWriter,
	in *incoming,
	out *outgoing,
	onNextError func(context.Context, error),
) messageQueue {
	return messageQueue{
		in:          in,
		out:         out,
		conn:        conn,
		onNextError: onNextError,
	}
}

func (q *messageQueue) appendHello(hello map[string]any, handler responseHandler) {
	q.out.appendHello(hello)
	q.enqueue(handler)
}

func (q *messageQueue) appendLogon(auth map[string]any, handler responseHandler) {
	q.out.appendLogon(auth)
	q.enqueue(handler)
}

func (q *messageQueue) appendLogoff(handler responseHandler) {
	q.out.appendLogoff()
	q.enqueue(handler)
}

func (q *messageQueue) appendBegin(meta map[string]any, handler responseHandler) {
	q.out.appendBegin(meta)
	q.enqueue(handler)
}

func (q *messageQueue) appendRun(cypher string, params, meta map[string]any, handler responseHandler) {
	q.out.appendRun(cypher, params, meta)
	q.enqueue(handler)
}

func (q *messageQueue) appendPullN(n int, handler responseHandler) {
	q.out.appendPullN(n)
	q.enqueue(handler)
}

func (q *messageQueue) appendPullNQid(n int, qid int64, handler responseHandler) {
	q.out.appendPullNQid(n, qid)
	q.enqueue(handler)
}

func (q *messageQueue) appendDiscardNQid(n int, qid int64, handler responseHandler) {
	q.out.appendDiscardNQid(n, qid)
	q.enqueue(handler)
}

func (q *messageQueue) appendCommit(handler responseHandler) {
	q.out.appendCommit()
	q.enqueue(handler)
}

func (q *messageQueue) appendRollback(handler responseHandler) {
	q.out.appendRollback()
	q.enqueue(handler)
}

func (q *messageQueue) appendReset(handler responseHandler) {
	q.out.appendReset()
	q.enqueue(handler)
}

func (q *messageQueue) appendGoodbye() {
	q.out.appendGoodbye()
	// Goodbye does not expect a response.
}

func (q *messageQueue) appendRoute(context map[string]string, bookmarks []string, extras map[string]any, handler responseHandler) {
	q.out.appendRoute(context, bookmarks, extras)
	q.enqueue(handler)
}

// send flushes all appended requests onto the wire.
func (q *messageQueue) send(ctx context.Context) {
	if err := q.out.send(ctx, q.conn); err != nil {
		q.onNextError(ctx, err)
		q.err = err
	}
}

// receive reads responses until every pending handler has been resolved.
func (q *messageQueue) receiveAll(ctx context.Context) error {
	for q.handlers.Len() > 0 {
		if err := q.receive(ctx); err != nil {
			return err
		}
	}
	return nil
}

// receive reads a single message and dispatches it to the front handler.
func (q *messageQueue) receive(ctx context.Context) error {
	res, err := q.in.next(ctx, q.conn)
	if err != nil {
		q.onNextError(ctx, err)
		q.err = err
		return err
	}

	switch message := res.(type) {
	case *db.Record:
		q.front().callOnRecord(message)
	case *success:
		q.pop().callOnSuccess(message)
	case *db.Neo4jError:
		q.pop().callOnFailure(ctx, message)
		q.err = message
		return message
	case *ignored:
		q.pop().callOnIgnored(message)
	default:
		panic("unexpected message type")
	}
	return nil
}

func (q *messageQueue) enqueue(handler responseHandler) {
	q.handlers.PushBack(handler)
}

func (q *messageQueue) pushFront(handler responseHandler) {
	q.handlers.PushFront(handler)
}

func (q *messageQueue) pop() responseHandler {
	return q.handlers.Remove(q.handlers.Front()).(responseHandler)
}

func (q *messageQueue) front() responseHandler {
	return q.handlers.Front().Value.(responseHandler)
}

func (q *messageQueue) isEmpty() bool {
	return q.handlers.Len() == 0
}

func (h responseHandler) callOnSuccess(message *success) {
	if h.onSuccess != nil {
		h.onSuccess(message)
	}
}

func (h responseHandler) callOnRecord(message *db.Record) {
	if h.onRecord != nil {
		h.onRecord(message)
	}
}

func (h responseHandler) callOnFailure(ctx context.Context, message *db.Neo4jError) {
	if h.onFailure != nil {
		h.onFailure(ctx, message)
	}
}

func (h responseHandler) callOnIgnored(message *ignored) {
	if h.onIgnored != nil {
		h.onIgnored(message)
	}
}
