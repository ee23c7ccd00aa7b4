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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// Delays must never shrink between attempts, jitter included.
func TestThrottlerDelaysAreNonDecreasing(t *testing.T) {
	throttler := Throttler(1 * time.Second)
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		throttler = throttler.next()
		delay := throttler.delay()
		require.GreaterOrEqual(t, delay, prev, "delay shrank on attempt %d", i)
		prev = delay
	}
}

// Each step doubles the previous jittered delay within the jitter bounds.
func TestThrottlerDelaysStayNearDoubling(t *testing.T) {
	throttler := Throttler(1 * time.Second)
	prev := float64(time.Second)
	for i := 0; i < 5; i++ {
		throttler = throttler.next()
		delay := float64(throttler.delay())
		assert.GreaterOrEqual(t, delay, prev*(multiplier-multiplier*jitterFactor))
		assert.LessOrEqual(t, delay, prev*(multiplier+multiplier*jitterFactor))
		prev = delay
	}
}

func testState() State {
	return State{
		MaxTransactionRetryTime: 30 * time.Second,
		Log:                     log.Void(),
		LogName:                 log.Session,
		Now:                     time.Now,
		Sleep:                   func(time.Duration) {},
		Throttle:                Throttler(time.Millisecond),
	}
}

func TestRetryOnTransientError(t *testing.T) {
	state := testState()
	state.OnFailure(context.Background(), &db.Neo4jError{Code: "Neo.TransientError.General.TransactionMemoryLimit"}, nil, false)
	assert.True(t, state.Continue())
}

func TestNoRetryOnClientError(t *testing.T) {
	state := testState()
	err := &db.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}
	state.OnFailure(context.Background(), err, nil, false)
	assert.False(t, state.Continue())
	assert.Same(t, err, state.ProduceError())
}

func TestNoRetryOnUserError(t *testing.T) {
	state := testState()
	userErr := errors.New("something the work function decided")
	state.OnFailure(context.Background(), userErr, nil, false)
	assert.False(t, state.Continue())
	assert.Same(t, userErr, state.ProduceError())
}

func TestGivesUpAfterMaxRetryTime(t *testing.T) {
	now := time.Now()
	state := testState()
	state.MaxTransactionRetryTime = 10 * time.Second
	state.Now = func() time.Time { return now }

	cause := &db.Neo4jError{Code: "Neo.TransientError.General.TransactionMemoryLimit"}
	state.OnFailure(context.Background(), cause, nil, false)
	require.True(t, state.Continue())

	// More time elapsed than the limit allows.
	now = now.Add(11 * time.Second)
	state.OnFailure(context.Background(), cause, nil, false)
	require.False(t, state.Continue())

	err := state.ProduceError()
	var limit *errorutil.TransactionExecutionLimit
	require.ErrorAs(t, err, &limit)
	// All attempt errors are preserved as suppressed errors.
	assert.Equal(t, 2, len(limit.Errors))
}

type retryTestConn struct {
	db.Connection
	alive bool
	name  string
}

func (c *retryTestConn) IsAlive() bool      { return c.alive }
func (c *retryTestConn) ServerName() string { return c.name }

func TestRetryOnDeadConnection(t *testing.T) {
	state := testState()
	conn := &retryTestConn{alive: false, name: "srv1:7687"}
	state.OnFailure(context.Background(), errors.New("broken pipe"), conn, false)
	assert.True(t, state.LastErrWasRetryable)
	assert.True(t, state.Continue())
}

// A connection that died while committing must not be retried, the commit
// may have been applied.
func TestNoRetryOnDeadConnectionDuringCommit(t *testing.T) {
	state := testState()
	conn := &retryTestConn{alive: false, name: "srv1:7687"}
	state.OnFailure(context.Background(), errors.New("broken pipe"), conn, true)
	assert.False(t, state.Continue())

	err := state.ProduceError()
	var commitFailed *errorutil.CommitFailedDeadError
	require.ErrorAs(t, err, &commitFailed)
}

type recordingRouter struct {
	invalidated       []string
	invalidatedWriter []string
	invalidatedServer []string
}

func (r *recordingRouter) Invalidate(database string) {
	r.invalidated = append(r.invalidated, database)
}
func (r *recordingRouter) InvalidateWriter(database, server string) {
	r.invalidatedWriter = append(r.invalidatedWriter, database+"/"+server)
}
func (r *recordingRouter) InvalidateServer(server string) {
	r.invalidatedServer = append(r.invalidatedServer, server)
}

// Cluster role errors are retryable but only useful after the stale routing
// table has been dropped.
func TestClusterErrorInvalidatesRoutingTable(t *testing.T) {
	router := &recordingRouter{}
	state := testState()
	state.Router = router
	state.DatabaseName = "movies"

	state.OnFailure(context.Background(), &db.Neo4jError{Code: "Neo.ClientError.Cluster.NotALeader"}, nil, false)
	assert.True(t, state.Continue())
	assert.Equal(t, []string{"movies"}, router.invalidated)
}

// When the member that rejected the write is known, only its writer role is
// dropped instead of the whole table.
func TestClusterErrorInvalidatesWriter(t *testing.T) {
	router := &recordingRouter{}
	state := testState()
	state.Router = router
	state.DatabaseName = "movies"

	conn := &retryTestConn{alive: true, name: "core1:7687"}
	state.OnFailure(context.Background(), &db.Neo4jError{Code: "Neo.ClientError.Cluster.NotALeader"}, conn, false)
	assert.True(t, state.Continue())
	assert.Equal(t, []string{"movies/core1:7687"}, router.invalidatedWriter)
	assert.Empty(t, router.invalidated)
}

func TestDeadConnectionInvalidatesServer(t *testing.T) {
	router := &recordingRouter{}
	state := testState()
	state.Router = router

	conn := &retryTestConn{alive: false, name: "srv1:7687"}
	state.OnFailure(context.Background(), errors.New("broken pipe"), conn, false)
	assert.Equal(t, []string{"srv1:7687"}, router.invalidatedServer)
}
