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
	"io"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/packstream"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// outgoing serializes requests into the chunker. Pack errors are funneled
// through onPackErr instead of being returned from every append call, the
// connection marks itself dead from there.
type outgoing struct {
	chunker    chunker
	packer     *packstream.Packer
	onPackErr  func(error)
	boltLogger log.BoltLogger
	logId      string
}

func newOutgoing(onPackErr func(error), boltLogger log.BoltLogger, logId string) *outgoing {
	o := &outgoing{
		chunker:    newChunker(),
		onPackErr:  onPackErr,
		boltLogger: boltLogger,
		logId:      logId,
	}
	o.packer = packstream.NewPacker(&o.chunker, dehydrate)
	return o
}

func (o *outgoing) begin() {
	o.chunker.beginMessage()
}

func (o *outgoing) end() {
	o.chunker.endMessage()
}

func (o *outgoing) packStruct(tag packstream.StructTag, fields ...any) {
	if err := o.packer.PackStruct(tag, fields...); err != nil {
		o.onPackErr(err)
	}
}

func (o *outgoing) appendHello(hello map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "HELLO %s", loggableDict(hello))
	}
	o.begin()
	o.packStruct(msgHello, hello)
	o.end()
}

func (o *outgoing) appendLogon(auth map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "LOGON %s", loggableDict(auth))
	}
	o.begin()
	o.packStruct(msgLogon, auth)
	o.end()
}

func (o *outgoing) appendLogoff() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "LOGOFF")
	}
	o.begin()
	o.packStruct(msgLogoff)
	o.end()
}

func (o *outgoing) appendBegin(meta map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "BEGIN %v", meta)
	}
	o.begin()
	o.packStruct(msgBegin, meta)
	o.end()
}

func (o *outgoing) appendRun(cypher string, params, meta map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "RUN %q %v %v", cypher, params, meta)
	}
	o.begin()
	o.packStruct(msgRun, cypher, ensureMap(params), ensureMap(meta))
	o.end()
}

func (o *outgoing) appendPullN(n int) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "PULL {\"n\": %d}", n)
	}
	o.begin()
	o.packStruct(msgPull, map[string]any{"n": n})
	o.end()
}

func (o *outgoing) appendPullNQid(n int, qid int64) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "PULL {\"n\": %d, \"qid\": %d}", n, qid)
	}
	o.begin()
	o.packStruct(msgPull, map[string]any{"n": n, "qid": qid})
	o.end()
}

func (o *outgoing) appendDiscardNQid(n int, qid int64) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "DISCARD {\"n\": %d, \"qid\": %d}", n, qid)
	}
	o.begin()
	o.packStruct(msgDiscard, map[string]any{"n": n, "qid": qid})
	o.end()
}

func (o *outgoing) appendCommit() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "COMMIT")
	}
	o.begin()
	o.packStruct(msgCommit)
	o.end()
}

func (o *outgoing) appendRollback() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "ROLLBACK")
	}
	o.begin()
	o.packStruct(msgRollback)
	o.end()
}

func (o *outgoing) appendReset() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "RESET")
	}
	o.begin()
	o.packStruct(msgReset)
	o.end()
}

func (o *outgoing) appendGoodbye() {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "GOODBYE")
	}
	o.begin()
	o.packStruct(msgGoodbye)
	o.end()
}

func (o *outgoing) appendRoute(context map[string]string, bookmarks []string, extras map[string]any) {
	if o.boltLogger != nil {
		o.boltLogger.LogClientMessage(o.logId, "ROUTE %v %v %v", context, bookmarks, extras)
	}
	o.begin()
	routeContext := make(map[string]any, len(context))
	for k, v := range context {
		routeContext[k] = v
	}
	if bookmarks == nil {
		bookmarks = []string{}
	}
	o.packStruct(msgRoute, routeContext, bookmarks, ensureMap(extras))
	o.end()
}

func (o *outgoing) send(ctx context.Context, wr io.Writer) error {
	return o.chunker.send(ctx, wr)
}

func ensureMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// loggableDict renders a message dict without exposing credentials.
func loggableDict(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "credentials" {
			out[k] = "<redacted>"
			continue
		}
		out[k] = v
	}
	return out
}
