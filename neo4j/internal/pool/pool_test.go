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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// fakeConn is a healthy connection that can be aged and killed at will.
type fakeConn struct {
	db.Connection
	serverName string
	alive      bool
	birth      time.Time
	resets     int32
	closed     int32
}

func (c *fakeConn) ServerName() string       { return c.serverName }
func (c *fakeConn) IsAlive() bool            { return c.alive }
func (c *fakeConn) HasFailed() bool          { return false }
func (c *fakeConn) Birthdate() time.Time     { return c.birth }
func (c *fakeConn) IdleDate() time.Time      { return c.birth }
func (c *fakeConn) Reset(context.Context)    { atomic.AddInt32(&c.resets, 1) }
func (c *fakeConn) Close(context.Context)    { atomic.AddInt32(&c.closed, 1) }
func (c *fakeConn) SelectDatabase(string)    {}
func (c *fakeConn) Bookmark() string         { return "" }

func newTestPool(maxSize int, lifetime time.Duration) (*Pool, *int32) {
	var connCount int32
	connect := func(_ context.Context, address string, _ log.BoltLogger) (db.Connection, error) {
		atomic.AddInt32(&connCount, 1)
		return &fakeConn{serverName: address, alive: true, birth: time.Now()}, nil
	}
	return New(Config{MaxSize: maxSize, MaxLifetime: lifetime}, connect, log.Void(), "pool-test", time.Now), &connCount
}

func TestBorrowReusesReturnedConnection(t *testing.T) {
	ctx := context.Background()
	p, connCount := newTestPool(2, time.Hour)
	defer p.Close(ctx)

	servers := []string{"srv1:7687"}
	c1, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	p.Return(ctx, c1)

	c2, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, int32(1), atomic.LoadInt32(connCount))
	// The connection was reset between borrowers.
	assert.Equal(t, int32(1), atomic.LoadInt32(&c1.(*fakeConn).resets))
}

// With the pool at capacity, an extra borrower blocks until a connection is
// returned and then gets exactly that connection.
func TestBorrowBlocksAtCapacity(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(2, time.Hour)
	defer p.Close(ctx)

	servers := []string{"srv1:7687"}
	c1, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	c2, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)

	borrowed := make(chan db.Connection)
	go func() {
		c, err := p.Borrow(ctx, servers, true, nil)
		assert.NoError(t, err)
		borrowed <- c
	}()

	select {
	case <-borrowed:
		t.Fatal("borrow should have blocked, pool is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Return(ctx, c1)
	select {
	case c := <-borrowed:
		assert.Same(t, c1, c)
	case <-time.After(time.Second):
		t.Fatal("waiting borrower was not woken up")
	}
	p.Return(ctx, c2)
}

func TestBorrowTimesOutAtCapacity(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(1, time.Hour)
	defer p.Close(ctx)

	servers := []string{"srv1:7687"}
	c1, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	defer p.Return(ctx, c1)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Borrow(timeoutCtx, servers, true, nil)
	require.Error(t, err)
	var poolTimeout *errorutil.PoolTimeout
	require.ErrorAs(t, err, &poolTimeout)
}

func TestBorrowNoWaitFailsFastAtCapacity(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(1, time.Hour)
	defer p.Close(ctx)

	servers := []string{"srv1:7687"}
	c1, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	defer p.Return(ctx, c1)

	_, err = p.Borrow(ctx, servers, false, nil)
	var poolFull *errorutil.PoolFull
	require.ErrorAs(t, err, &poolFull)
}

// Dead connections are closed on return instead of going back to the idle
// list.
func TestReturnDropsDeadConnection(t *testing.T) {
	ctx := context.Background()
	p, connCount := newTestPool(2, time.Hour)
	defer p.Close(ctx)

	servers := []string{"srv1:7687"}
	c1, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	c1.(*fakeConn).alive = false
	p.Return(ctx, c1)

	c2, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, int32(2), atomic.LoadInt32(connCount))
	p.Return(ctx, c2)
}

// Connections past their maximum lifetime are replaced on borrow.
func TestBorrowReplacesExpiredConnection(t *testing.T) {
	ctx := context.Background()
	p, connCount := newTestPool(2, time.Minute)
	defer p.Close(ctx)

	servers := []string{"srv1:7687"}
	c1, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	c1.(*fakeConn).birth = time.Now().Add(-2 * time.Minute)
	p.Return(ctx, c1)

	c2, err := p.Borrow(ctx, servers, true, nil)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, int32(2), atomic.LoadInt32(connCount))
	p.Return(ctx, c2)
}

func TestBorrowFromClosedPool(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(1, time.Hour)
	p.Close(ctx)

	_, err := p.Borrow(ctx, []string{"srv1:7687"}, true, nil)
	var poolClosed *errorutil.PoolClosed
	require.ErrorAs(t, err, &poolClosed)
}

// With several healthy candidates the pool grows the least loaded one, so
// load spreads across the cluster instead of piling on the first server of
// the routing table.
func TestBorrowSpreadsLoadAcrossServers(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(10, time.Hour)
	defer p.Close(ctx)

	servers := []string{"srv1:7687", "srv2:7687"}
	perServer := make(map[string]int)
	for i := 0; i < 6; i++ {
		c, err := p.Borrow(ctx, servers, true, nil)
		require.NoError(t, err)
		perServer[c.ServerName()]++
	}
	assert.Equal(t, map[string]int{"srv1:7687": 3, "srv2:7687": 3}, perServer)
}

// Idle connections are also taken from the least busy candidate.
func TestBorrowIdlePrefersLeastBusyServer(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(10, time.Hour)
	defer p.Close(ctx)

	// srv1 ends up with two busy and one idle connection, srv2 with one idle.
	var srv1Conns []db.Connection
	for i := 0; i < 3; i++ {
		c, err := p.Borrow(ctx, []string{"srv1:7687"}, true, nil)
		require.NoError(t, err)
		srv1Conns = append(srv1Conns, c)
	}
	srv2Conn, err := p.Borrow(ctx, []string{"srv2:7687"}, true, nil)
	require.NoError(t, err)
	p.Return(ctx, srv1Conns[0])
	p.Return(ctx, srv2Conn)

	c, err := p.Borrow(ctx, []string{"srv1:7687", "srv2:7687"}, true, nil)
	require.NoError(t, err)
	assert.Same(t, srv2Conn, c)
	p.Return(ctx, c)
}

// Closing the pool force-closes handed out connections as well, not only
// idle ones.
func TestCloseClosesBorrowedConnections(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(2, time.Hour)

	c1, err := p.Borrow(ctx, []string{"srv1:7687"}, true, nil)
	require.NoError(t, err)

	p.Close(ctx)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&c1.(*fakeConn).closed) == 1
	}, time.Second, 5*time.Millisecond, "borrowed connection was not closed")

	// Returning it afterwards must not close it a second time.
	p.Return(ctx, c1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&c1.(*fakeConn).closed))
}

// Hammering a tiny pool from many goroutines must never lose a wakeup; every
// borrower finishes well within the deadline.
func TestConcurrentBorrowReturn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, _ := newTestPool(1, time.Hour)
	defer p.Close(context.Background())

	const borrowers = 20
	var wg sync.WaitGroup
	wg.Add(borrowers)
	for i := 0; i < borrowers; i++ {
		go func() {
			defer wg.Done()
			c, err := p.Borrow(ctx, []string{"srv1:7687"}, true, nil)
			if assert.NoError(t, err) {
				p.Return(ctx, c)
			}
		}()
	}
	wg.Wait()
}

// Borrowing from several candidate servers prefers an existing idle
// connection over opening a new one.
func TestBorrowPrefersIdleAcrossServers(t *testing.T) {
	ctx := context.Background()
	p, connCount := newTestPool(2, time.Hour)
	defer p.Close(ctx)

	c1, err := p.Borrow(ctx, []string{"srv1:7687"}, true, nil)
	require.NoError(t, err)
	p.Return(ctx, c1)

	c2, err := p.Borrow(ctx, []string{"srv2:7687", "srv1:7687"}, true, nil)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, int32(1), atomic.LoadInt32(connCount))
	p.Return(ctx, c2)
}
