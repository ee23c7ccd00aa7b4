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

// Package pool handles the database connection pool.
package pool

// Thread safe

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// failedConnectPenalty is how long a server is deprioritized after a failed
// connection attempt.
const failedConnectPenalty = 5 * time.Second

var (
	connsCreated  = metrics.NewCounter("neo4j_pool_connections_created_total")
	connsClosed   = metrics.NewCounter("neo4j_pool_connections_closed_total")
	connsBorrowed = metrics.NewCounter("neo4j_pool_connections_borrowed_total")
	connsReturned = metrics.NewCounter("neo4j_pool_connections_returned_total")
)

// Connect establishes and authenticates a connection to the given address.
type Connect func(ctx context.Context, address string, boltLogger log.BoltLogger) (db.Connection, error)

type qitem struct {
	wakeup chan bool
}

type Config struct {
	// MaxSize is the maximum number of connections per server, zero or less
	// means unlimited.
	MaxSize int
	// MaxLifetime is the longest a connection is kept before being replaced.
	MaxLifetime time.Duration
}

// Pool hands out connections per server address up to a configured limit and
// parks borrowers in a wait queue when a server is saturated. Returned
// connections wake the longest waiting borrower.
type Pool struct {
	config     Config
	connect    Connect
	servers    map[string]*server
	serversMut sync.Mutex
	queueMut   sync.Mutex
	queue      list.List // Items of type *qitem
	now        func() time.Time
	closed     bool
	log        log.Logger
	logId      string
}

func New(config Config, connect Connect, logger log.Logger, logId string, now func() time.Time) *Pool {
	if now == nil {
		now = time.Now
	}
	p := &Pool{
		config:  config,
		connect: connect,
		servers: make(map[string]*server),
		now:     now,
		log:     logger,
		logId:   logId,
	}
	p.log.Infof(log.Pool, p.logId, "Created")
	return p
}

// Close force-closes every tracked connection, idle and handed out alike,
// and rejects all future borrows.
func (p *Pool) Close(ctx context.Context) {
	p.serversMut.Lock()
	p.closed = true
	for n, s := range p.servers {
		s.closeAll(ctx)
		delete(p.servers, n)
	}
	p.serversMut.Unlock()
	// Wake up everyone in the wait queue, they will find the pool closed.
	p.queueMut.Lock()
	for e := p.queue.Front(); e != nil; e = e.Next() {
		item := e.Value.(*qitem)
		item.wakeup <- true
	}
	p.queue.Init()
	p.queueMut.Unlock()
	p.log.Infof(log.Pool, p.logId, "Closed")
}

// Borrow returns an exclusive connection to the first of the given servers
// that can provide one. When every candidate is at capacity and wait is true
// the call blocks until a connection is returned or ctx expires.
func (p *Pool) Borrow(ctx context.Context, serverNames []string, wait bool, boltLogger log.BoltLogger) (db.Connection, error) {
	if len(serverNames) == 0 {
		return nil, &errorutil.PoolTimeout{Err: errors.New("no server to borrow from"), Servers: serverNames}
	}

	for {
		if p.isClosed() {
			return nil, &errorutil.PoolClosed{}
		}

		conn, err := p.tryBorrow(ctx, serverNames, boltLogger)
		if conn != nil || err != nil {
			return conn, err
		}
		if !wait {
			return nil, &errorutil.PoolFull{Servers: serverNames}
		}

		// All servers are at capacity, wait for a returned connection.
		q := &qitem{wakeup: make(chan bool, 1)}
		p.queueMut.Lock()
		e := p.queue.PushBack(q)
		p.queueMut.Unlock()

		// A connection returned between the borrow attempt and the enqueue
		// found an empty queue and woke nobody, check once more now that we
		// are queued.
		conn, err = p.tryBorrow(ctx, serverNames, boltLogger)
		if conn != nil || err != nil {
			p.queueMut.Lock()
			p.queue.Remove(e)
			p.queueMut.Unlock()
			return conn, err
		}

		p.log.Warnf(log.Pool, p.logId, "Borrow queued")
		select {
		case <-q.wakeup:
		case <-ctx.Done():
			p.queueMut.Lock()
			p.queue.Remove(e)
			p.queueMut.Unlock()
			return nil, &errorutil.PoolTimeout{Err: ctx.Err(), Servers: serverNames}
		}
	}
}

// tryBorrow makes one pass over the candidate servers: first idle
// connections, then room to grow, always picking the least loaded candidate
// so the work spreads across the cluster instead of piling on whichever
// server the routing table lists first. Returns nil, nil when every server
// is saturated.
func (p *Pool) tryBorrow(ctx context.Context, serverNames []string, boltLogger log.BoltLogger) (db.Connection, error) {
	var reservedServer *server
	var reservedAddress string

	p.serversMut.Lock()
	if p.closed {
		p.serversMut.Unlock()
		return nil, &errorutil.PoolClosed{}
	}
	for {
		var best *server
		for _, serverName := range serverNames {
			srv := p.servers[serverName]
			if srv == nil || srv.numIdle() == 0 {
				continue
			}
			if best == nil || srv.numBusy() < best.numBusy() {
				best = srv
			}
		}
		if best == nil {
			break
		}
		conn := best.getIdle()
		if healthCheck(conn, p.config.MaxLifetime, p.now) {
			p.serversMut.Unlock()
			connsBorrowed.Inc()
			return conn, nil
		}
		best.unregisterBusy(conn)
		connsClosed.Inc()
		go conn.Close(ctx)
	}
	// No idle connection anywhere, grow the smallest server with capacity,
	// preferring ones without a recent connect failure.
	for _, penalized := range []bool{false, true} {
		for _, serverName := range serverNames {
			srv := p.servers[serverName]
			if srv == nil {
				srv = NewServer()
				p.servers[serverName] = srv
			}
			if p.config.MaxSize > 0 && srv.size() >= p.config.MaxSize {
				continue
			}
			if srv.hasFailedConnect(p.now(), failedConnectPenalty) != penalized {
				continue
			}
			if reservedServer == nil || srv.size() < reservedServer.size() {
				reservedServer = srv
				reservedAddress = serverName
			}
		}
		if reservedServer != nil {
			break
		}
	}
	if reservedServer != nil {
		reservedServer.reservations++
	}
	p.serversMut.Unlock()

	if reservedServer == nil {
		return nil, nil
	}

	conn, err := p.connect(ctx, reservedAddress, boltLogger)

	p.serversMut.Lock()
	reservedServer.reservations--
	if err != nil {
		reservedServer.notifyFailedConnect(p.now())
		p.serversMut.Unlock()
		return nil, err
	}
	reservedServer.notifySuccessfulConnect()
	reservedServer.registerBusy(conn)
	p.serversMut.Unlock()

	connsCreated.Inc()
	connsBorrowed.Inc()
	return conn, nil
}

// Return puts a connection back. Unhealthy connections are closed, healthy
// ones are reset and made available again, waking a queued borrower if any.
func (p *Pool) Return(ctx context.Context, conn db.Connection) {
	connsReturned.Inc()
	serverName := conn.ServerName()

	keep := conn.IsAlive() && healthCheck(conn, p.config.MaxLifetime, p.now)
	if keep {
		conn.Reset(ctx)
		keep = conn.IsAlive()
	}

	p.serversMut.Lock()
	if p.closed {
		// Close already force-closed every tracked connection.
		p.serversMut.Unlock()
		return
	}
	srv := p.servers[serverName]
	if srv == nil || srv.closing {
		keep = false
		if srv != nil {
			srv.unregisterBusy(conn)
		}
	} else if keep {
		srv.returnBusy(conn)
		srv.removeIdleOlderThan(ctx, p.now(), p.config.MaxLifetime)
	} else {
		srv.unregisterBusy(conn)
	}
	p.serversMut.Unlock()

	if !keep {
		connsClosed.Inc()
		go conn.Close(ctx)
	}

	// Hand the slot to the longest waiting borrower.
	p.queueMut.Lock()
	if e := p.queue.Front(); e != nil {
		item := p.queue.Remove(e).(*qitem)
		item.wakeup <- true
	}
	p.queueMut.Unlock()
}

func (p *Pool) isClosed() bool {
	p.serversMut.Lock()
	defer p.serversMut.Unlock()
	return p.closed
}
