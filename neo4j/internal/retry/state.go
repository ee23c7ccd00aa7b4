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

// Package retry handles retry operations.
package retry

import (
	"context"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// Router is the routing table invalidation interface the retry logic needs
// when a cluster error reveals a stale table.
type Router interface {
	Invalidate(database string)
	InvalidateWriter(database, server string)
	InvalidateServer(server string)
}

// State drives the retry loop of a managed transaction. The loop calls
// OnFailure after a failed attempt and then Continue to learn whether
// another attempt should be made. Once Continue returns false the caller
// reports ProduceError to the user.
type State struct {
	Errs                    []error
	causes                  []string
	LastErrWasRetryable     bool
	MaxTransactionRetryTime time.Duration
	Log                     log.Logger
	LogName                 string
	LogId                   string
	Now                     func() time.Time
	Sleep                   func(time.Duration)
	Throttle                Throttler
	MaxDeadConnections      int
	Router                  Router
	DatabaseName            string

	start      time.Time
	cause      string
	deadErrors int
	skipSleep  bool
}

// OnFailure records the outcome of a failed attempt. A dead connection
// makes the attempt retryable regardless of the error, unless the failure
// happened while committing in which case the outcome of the transaction is
// unknown and retrying could apply it twice.
func (s *State) OnFailure(_ context.Context, err error, conn db.Connection, isCommitting bool) {
	if conn != nil && !conn.IsAlive() {
		if isCommitting {
			// The request may have reached the database and been applied.
			err = &errorutil.CommitFailedDeadError{Inner: err}
		}
		s.Errs = append(s.Errs, err)
		s.deadErrors++
		s.LastErrWasRetryable = !isCommitting
		s.cause = "Connection lost"
		s.skipSleep = true
		if s.Router != nil && conn.ServerName() != "" {
			s.Router.InvalidateServer(conn.ServerName())
		}
		return
	}

	s.Errs = append(s.Errs, err)
	s.skipSleep = false
	s.LastErrWasRetryable = IsRetryable(err)

	if neo4jErr, ok := err.(*db.Neo4jError); ok && neo4jErr.IsRetriableCluster() {
		// The cluster topology changed underneath us, the stale routing
		// table is what sent the request to the wrong member. When the
		// rejecting server is known only its writer role is gone, the rest
		// of the table is still good.
		if s.Router != nil {
			if conn != nil && conn.ServerName() != "" {
				s.Router.InvalidateWriter(s.DatabaseName, conn.ServerName())
			} else {
				s.Router.Invalidate(s.DatabaseName)
			}
		}
		s.cause = "Cluster error"
		return
	}
	s.cause = "Server told us to"
}

// Continue reports whether another attempt should be made, sleeping the
// backoff delay before returning true.
func (s *State) Continue() bool {
	if !s.LastErrWasRetryable {
		return false
	}

	now := s.Now()
	if s.start.IsZero() {
		s.start = now
	}
	if now.Sub(s.start) > s.MaxTransactionRetryTime {
		s.causes = append(s.causes, "Timeout")
		return false
	}
	if s.MaxDeadConnections > 0 && s.deadErrors > s.MaxDeadConnections {
		s.causes = append(s.causes, "Too many dead connections")
		return false
	}

	if s.skipSleep {
		s.Log.Debugf(s.LogName, s.LogId, "Retrying transaction (%s): no sleep", s.cause)
	} else {
		s.Throttle = s.Throttle.next()
		delay := s.Throttle.delay()
		s.Log.Debugf(s.LogName, s.LogId, "Retrying transaction (%s): sleeping %s", s.cause, delay.String())
		s.Sleep(delay)
	}
	return true
}

// ProduceError returns the error to surface to the user after the loop has
// given up.
func (s *State) ProduceError() error {
	if !s.LastErrWasRetryable {
		// Return the error as is when no retry was attempted for it.
		return s.Errs[len(s.Errs)-1]
	}
	cause := "Unknown cause"
	if len(s.causes) > 0 {
		cause = s.causes[len(s.causes)-1]
	}
	return &errorutil.TransactionExecutionLimit{Cause: cause, Errors: s.Errs}
}

// IsRetryable reports whether an attempt that failed with err may succeed
// when run again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *db.Neo4jError:
		return e.IsRetriable()
	case *errorutil.PoolTimeout, *errorutil.PoolFull:
		return true
	case *errorutil.ConnectivityError:
		return true
	case *errorutil.ReadRoutingTableError:
		return true
	case *errorutil.CommitFailedDeadError:
		return false
	default:
		return false
	}
}
