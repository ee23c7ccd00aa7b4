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

// Package router handles routing of commands to different servers in a
// causal cluster.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// missingWriterRetries is the number of table refreshes attempted when the
// routing table has no writer, clusters elect leaders asynchronously.
const missingWriterRetries = 100
const missingWriterRetryWait = 100 * time.Millisecond

// Pool is the subset of the connection pool the router needs.
type Pool interface {
	Borrow(ctx context.Context, serverNames []string, wait bool, boltLogger log.BoltLogger) (db.Connection, error)
	Return(ctx context.Context, conn db.Connection)
}

// databaseRouter is the routing table of one database plus its expiry time.
type databaseRouter struct {
	dueUnix int64
	table   *db.RoutingTable
}

// flight is an in-progress table refresh that concurrent callers for the
// same database attach to instead of launching their own.
type flight struct {
	done  chan struct{}
	table *db.RoutingTable
	err   error
}

// homeDb is the resolved home database of one user, cached so that new
// sessions do not re-ask the cluster on every creation.
type homeDb struct {
	dueUnix int64
	name    string
}

// Router resolves read and write servers per database from the cluster's
// routing tables, refreshing them when their time to live has passed. Table
// refreshes for the same database are coalesced, only one ROUTE request is
// in flight per database no matter how many sessions ask.
type Router struct {
	rootRouter    string
	routerContext map[string]string
	pool          Pool
	dbRouters     *xsync.MapOf[string, *databaseRouter]
	homeDbCache   *xsync.MapOf[string, *homeDb]
	updating      map[string]*flight
	updatingMut   sync.Mutex
	now           func() time.Time
	sleep         func(time.Duration)
	log           log.Logger
	logId         string
}

func New(rootRouter string, routerContext map[string]string, pool Pool, logger log.Logger, logId string, timer func() time.Time) *Router {
	r := &Router{
		rootRouter:    rootRouter,
		routerContext: routerContext,
		pool:          pool,
		dbRouters:     xsync.NewMapOf[string, *databaseRouter](),
		homeDbCache:   xsync.NewMapOf[string, *homeDb](),
		updating:      make(map[string]*flight),
		now:           timer,
		sleep:         time.Sleep,
		log:           logger,
		logId:         logId,
	}
	r.log.Infof(log.Router, r.logId, "Created {context: %v}", routerContext)
	return r
}

// GetOrUpdateReaders returns the readers of the database, refreshing the
// routing table as needed.
func (r *Router) GetOrUpdateReaders(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) ([]string, error) {
	table, err := r.getOrUpdateTable(ctx, bookmarks, database, impersonatedUser, boltLogger)
	if err != nil {
		return nil, err
	}
	return table.Readers, nil
}

// GetOrUpdateWriters returns the writers of the database, refreshing the
// routing table as needed. Retries for a while when the table has readers
// but no writer, which happens while the cluster elects a new leader.
func (r *Router) GetOrUpdateWriters(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) ([]string, error) {
	table, err := r.getOrUpdateTable(ctx, bookmarks, database, impersonatedUser, boltLogger)
	if err != nil {
		return nil, err
	}
	for i := 0; i < missingWriterRetries && len(table.Writers) == 0; i++ {
		r.log.Infof(log.Router, r.logId, "Routing table has no writers, retrying")
		r.sleep(missingWriterRetryWait)
		r.Invalidate(database)
		table, err = r.getOrUpdateTable(ctx, bookmarks, database, impersonatedUser, boltLogger)
		if err != nil {
			return nil, err
		}
	}
	return table.Writers, nil
}

// GetNameOfDefaultDatabase resolves the home database of the given user,
// asking a router only when the cached answer has expired.
func (r *Router) GetNameOfDefaultDatabase(ctx context.Context, bookmarks []string, impersonatedUser string, boltLogger log.BoltLogger) (string, error) {
	if entry, ok := r.homeDbCache.Load(impersonatedUser); ok && r.now().Unix() < entry.dueUnix {
		return entry.name, nil
	}
	table, err := r.updateTable(ctx, bookmarks, db.DefaultDatabase, impersonatedUser, boltLogger)
	if err != nil {
		return "", err
	}
	r.homeDbCache.Store(impersonatedUser, &homeDb{
		name:    table.DatabaseName,
		dueUnix: r.now().Add(time.Duration(table.TimeToLive) * time.Second).Unix(),
	})
	return table.DatabaseName, nil
}

func (r *Router) getOrUpdateTable(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) (*db.RoutingTable, error) {
	if dbRouter, ok := r.dbRouters.Load(database); ok && r.now().Unix() < dbRouter.dueUnix {
		return dbRouter.table, nil
	}
	return r.updateTable(ctx, bookmarks, database, impersonatedUser, boltLogger)
}

// updateTable fetches a fresh routing table, piggybacking on an update
// already in flight for the same database when there is one.
func (r *Router) updateTable(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) (*db.RoutingTable, error) {
	r.updatingMut.Lock()
	if f, ok := r.updating[database]; ok {
		r.updatingMut.Unlock()
		select {
		case <-f.done:
			return f.table, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	r.updating[database] = f
	r.updatingMut.Unlock()

	f.table, f.err = r.readFreshTable(ctx, bookmarks, database, impersonatedUser, boltLogger)

	r.updatingMut.Lock()
	delete(r.updating, database)
	r.updatingMut.Unlock()
	close(f.done)

	return f.table, f.err
}

// readFreshTable queries known routers for the database first and falls back
// to the initial router from the connection URI.
func (r *Router) readFreshTable(ctx context.Context, bookmarks []string, database, impersonatedUser string, boltLogger log.BoltLogger) (*db.RoutingTable, error) {
	var routers []string
	if dbRouter, ok := r.dbRouters.Load(database); ok {
		routers = dbRouter.table.Routers
	}
	routers = append(routers, r.rootRouter)

	table, err := readTable(ctx, r.pool, routers, r.routerContext, bookmarks, database, impersonatedUser, boltLogger, r.log, r.logId)
	if err != nil {
		r.log.Error(log.Router, r.logId, err)
		return nil, err
	}

	r.storeTable(database, table)
	if database == db.DefaultDatabase && table.DatabaseName != "" {
		// The same table also answers for the resolved home database.
		r.storeTable(table.DatabaseName, table)
	}
	r.log.Debugf(log.Router, r.logId, "New routing table for '%s', TTL %d", table.DatabaseName, table.TimeToLive)
	return table, nil
}

func (r *Router) storeTable(database string, table *db.RoutingTable) {
	r.dbRouters.Store(database, &databaseRouter{
		table:   table,
		dueUnix: r.now().Add(time.Duration(table.TimeToLive) * time.Second).Unix(),
	})
}

// Invalidate discards the routing table of one database, the next request
// for it fetches a fresh one.
func (r *Router) Invalidate(database string) {
	r.log.Infof(log.Router, r.logId, "Invalidating routing table for '%s'", database)
	r.dbRouters.Delete(database)
}

// InvalidateWriter removes one writer from a database's table, keeping the
// rest of the table intact. A published table is never mutated, readers that
// already hold it keep a consistent snapshot; the cache entry is swapped for
// a filtered copy instead.
func (r *Router) InvalidateWriter(database, server string) {
	dbRouter, ok := r.dbRouters.Load(database)
	if !ok {
		return
	}
	r.dbRouters.Store(database, dbRouter.without(server, writerRole))
}

// InvalidateServer removes a broken server from every routing table.
func (r *Router) InvalidateServer(server string) {
	r.dbRouters.Range(func(database string, dbRouter *databaseRouter) bool {
		r.dbRouters.Store(database, dbRouter.without(server, allRoles))
		return true
	})
}

// CleanUp removes expired routing tables.
func (r *Router) CleanUp() {
	r.log.Debugf(log.Router, r.logId, "Cleaning up")
	now := r.now().Unix()
	r.dbRouters.Range(func(database string, dbRouter *databaseRouter) bool {
		if now > dbRouter.dueUnix {
			r.dbRouters.Delete(database)
		}
		return true
	})
	r.homeDbCache.Range(func(user string, entry *homeDb) bool {
		if now > entry.dueUnix {
			r.homeDbCache.Delete(user)
		}
		return true
	})
}

type serverRole int

const (
	writerRole serverRole = iota
	allRoles
)

// without returns a replacement cache entry with the server filtered from
// the given role(s), leaving the original table untouched.
func (d *databaseRouter) without(server string, role serverRole) *databaseRouter {
	table := &db.RoutingTable{
		TimeToLive:   d.table.TimeToLive,
		DatabaseName: d.table.DatabaseName,
		Routers:      d.table.Routers,
		Readers:      d.table.Readers,
		Writers:      withoutServer(d.table.Writers, server),
	}
	if role == allRoles {
		table.Routers = withoutServer(d.table.Routers, server)
		table.Readers = withoutServer(d.table.Readers, server)
	}
	return &databaseRouter{dueUnix: d.dueUnix, table: table}
}

func withoutServer(servers []string, server string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		if s != server {
			out = append(out, s)
		}
	}
	return out
}
