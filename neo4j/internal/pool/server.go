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

package pool

import (
	"container/list"
	"context"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
)

// server holds the connections of one host, split into idle and busy lists.
// All mutation happens under the pool's server mutex.
type server struct {
	idle            list.List
	busy            list.List
	reservations    int
	failedConnectAt time.Time
	closing         bool
}

func NewServer() *server {
	return &server{}
}

// getIdle returns an idle connection, most recently used first, or nil.
func (s *server) getIdle() db.Connection {
	e := s.idle.Front()
	if e == nil {
		return nil
	}
	c := s.idle.Remove(e).(db.Connection)
	s.busy.PushFront(c)
	return c
}

// healthCheck decides whether an idle connection that is about to be handed
// out is still usable. Too old or dead connections are closed instead.
func healthCheck(conn db.Connection, maxLifetime time.Duration, now func() time.Time) bool {
	if !conn.IsAlive() {
		return false
	}
	if maxLifetime > 0 && now().Sub(conn.Birthdate()) >= maxLifetime {
		return false
	}
	return true
}

func (s *server) notifyFailedConnect(now time.Time) {
	s.failedConnectAt = now
}

func (s *server) notifySuccessfulConnect() {
	s.failedConnectAt = time.Time{}
}

// hasFailedConnect reports whether a connect to this server failed recently,
// servers in penalty are deprioritized when picking among alternatives.
func (s *server) hasFailedConnect(now time.Time, penalty time.Duration) bool {
	if s.failedConnectAt.IsZero() {
		return false
	}
	return now.Sub(s.failedConnectAt) < penalty
}

func (s *server) registerBusy(c db.Connection) {
	s.busy.PushFront(c)
}

func (s *server) returnBusy(c db.Connection) {
	s.unregisterBusy(c)
	s.idle.PushFront(c)
}

func (s *server) unregisterBusy(c db.Connection) {
	for e := s.busy.Front(); e != nil; e = e.Next() {
		if e.Value.(db.Connection) == c {
			s.busy.Remove(e)
			return
		}
	}
}

// size includes connections handed out, idle ones and pending reservations,
// it is what the per-server capacity limit applies to.
func (s *server) size() int {
	return s.busy.Len() + s.idle.Len() + s.reservations
}

func (s *server) numIdle() int {
	return s.idle.Len()
}

func (s *server) numBusy() int {
	return s.busy.Len()
}

// removeIdleOlderThan closes idle connections that exceeded the maximum
// lifetime. Runs when connections are returned, there is no reaper goroutine.
func (s *server) removeIdleOlderThan(ctx context.Context, now time.Time, maxLifetime time.Duration) {
	if maxLifetime <= 0 {
		return
	}
	e := s.idle.Front()
	for e != nil {
		n := e.Next()
		c := e.Value.(db.Connection)
		if now.Sub(c.Birthdate()) >= maxLifetime {
			s.idle.Remove(e)
			go c.Close(ctx)
		}
		e = n
	}
}

// closeAll force-closes every connection of this server, including ones
// currently handed out to sessions.
func (s *server) closeAll(ctx context.Context) {
	closeAndEmptyConnections(ctx, &s.idle)
	closeAndEmptyConnections(ctx, &s.busy)
	s.closing = true
}

func closeAndEmptyConnections(ctx context.Context, l *list.List) {
	for e := l.Front(); e != nil; e = e.Next() {
		c := e.Value.(db.Connection)
		go c.Close(ctx)
	}
	l.Init()
}
