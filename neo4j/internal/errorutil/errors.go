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

package errorutil

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
)

const InvalidTransactionError = "invalid transaction handle"

// CombineErrors keeps both errors when a follow-up failure happens while
// handling a previous one; neither may be silently dropped.
func CombineErrors(err1, err2 error) error {
	if err2 == nil {
		return err1
	}
	if err1 == nil {
		return err2
	}
	return fmt.Errorf("error %v occurred after previous error %w", err2, err1)
}

// UsageError represents errors caused by incorrect usage of the driver API.
// This does not include Cypher syntax errors (those are Neo4jError).
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ConnectivityError represents errors caused by the driver not being able to
// connect to the database, or lost connections.
type ConnectivityError struct {
	Inner error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("ConnectivityError: %s", e.Inner.Error())
}

func (e *ConnectivityError) Unwrap() error {
	return e.Inner
}

// TokenExpiredError is the terminal form of an expired authentication token,
// the driver can not recover from this on its own.
type TokenExpiredError struct {
	Code    string
	Message string
	cause   *db.Neo4jError
}

func (e *TokenExpiredError) Unwrap() error {
	return e.cause
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("TokenExpiredError: %s (%s)", e.Code, e.Message)
}

type PoolTimeout struct {
	Err     error
	Servers []string
}

func (e *PoolTimeout) Error() string {
	return fmt.Sprintf("Timeout while waiting for connection to any of [%s]: %s", e.Servers, e.Err)
}

type PoolFull struct {
	Servers []string
}

func (e *PoolFull) Error() string {
	return fmt.Sprintf("No idle connections on any of [%s]", e.Servers)
}

type PoolClosed struct {
}

func (e *PoolClosed) Error() string {
	return "Pool closed"
}

type ReadRoutingTableError struct {
	Err    error
	Server string
}

func (e *ReadRoutingTableError) Error() string {
	if e.Err != nil || len(e.Server) > 0 {
		return fmt.Sprintf("Unable to retrieve routing table from %s: %s", e.Server, e.Err)
	}
	return "Unable to retrieve routing table, no router provided"
}

type CommitFailedDeadError struct {
	Inner error
}

func (e *CommitFailedDeadError) Error() string {
	return fmt.Sprintf("Connection lost during commit: %s", e.Inner)
}

// TransactionExecutionLimit indicates that a retryable transaction has failed
// due to reaching a limit like the maximum retry time. The suppressed errors
// of all prior attempts are attached.
type TransactionExecutionLimit struct {
	Cause  string
	Errors []error
}

func (e *TransactionExecutionLimit) Error() string {
	var last error
	if l := len(e.Errors); l > 0 {
		last = e.Errors[l-1]
	}
	return fmt.Sprintf("TransactionExecutionLimit: %s after %d attempts, last error: %s", e.Cause, len(e.Errors), last)
}

func (e *TransactionExecutionLimit) Unwrap() error {
	if l := len(e.Errors); l > 0 {
		return e.Errors[l-1]
	}
	return nil
}

type timeout interface {
	Timeout() bool
}

func IsTimeoutError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}
	timeoutErr, ok := err.(timeout)
	return ok && timeoutErr.Timeout()
}

// IsFatalDuringDiscovery reports errors that should abort trying further
// routers, trying the next one can not succeed either.
func IsFatalDuringDiscovery(err error) bool {
	if _, ok := err.(*db.FeatureNotSupportedError); ok {
		return true
	}
	if err, ok := err.(*db.Neo4jError); ok {
		if err.Code == "Neo.ClientError.Database.DatabaseNotFound" {
			return true
		}
		if err.HasSecurityCode() && err.Code != "Neo.ClientError.Security.AuthorizationExpired" {
			return true
		}
	}
	return false
}

// WrapError maps internal error types to the stable public taxonomy at the
// API boundary.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return &ConnectivityError{Inner: err}
	}
	switch e := err.(type) {
	case *db.FeatureNotSupportedError:
		return &UsageError{Message: fmt.Sprintf("feature not supported: %s", err.Error())}
	case *PoolClosed:
		return &UsageError{Message: err.Error()}
	case net.Error:
		return &ConnectivityError{Inner: err}
	case *PoolTimeout, *PoolFull:
		return &ConnectivityError{Inner: err}
	case *ReadRoutingTableError:
		return &ConnectivityError{Inner: err}
	case *CommitFailedDeadError:
		return &ConnectivityError{Inner: err}
	case *db.Neo4jError:
		if e.Code == "Neo.ClientError.Security.TokenExpired" {
			return &TokenExpiredError{Code: e.Code, Message: e.Msg, cause: e}
		}
	}
	if err.Error() == InvalidTransactionError {
		return &UsageError{Message: InvalidTransactionError}
	}
	return err
}
