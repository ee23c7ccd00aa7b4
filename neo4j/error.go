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

package neo4j

import (
	"errors"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/retry"
)

// Neo4jError is an error reported by the database itself, carrying a
// structured status code on top of the message.
type Neo4jError = db.Neo4jError

// UsageError reports incorrect usage of the driver API.
type UsageError = errorutil.UsageError

// ConnectivityError reports that the driver could not talk to the database.
type ConnectivityError = errorutil.ConnectivityError

// TransactionExecutionLimit is returned when a managed transaction gave up
// retrying within its limits.
type TransactionExecutionLimit = errorutil.TransactionExecutionLimit

// TokenExpiredError is returned when the authentication token has expired
// server side.
type TokenExpiredError = errorutil.TokenExpiredError

// IsNeo4jError reports whether err is (or wraps) a database error.
func IsNeo4jError(err error) bool {
	var target *Neo4jError
	return errors.As(err, &target)
}

// IsUsageError reports whether err is (or wraps) a driver usage error.
func IsUsageError(err error) bool {
	var target *UsageError
	return errors.As(err, &target)
}

// IsConnectivityError reports whether err is (or wraps) a connectivity
// error.
func IsConnectivityError(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

// IsTransactionExecutionLimit reports whether err is (or wraps) a
// transaction execution limit error.
func IsTransactionExecutionLimit(err error) bool {
	var target *TransactionExecutionLimit
	return errors.As(err, &target)
}

// IsRetryable reports whether running the failed unit of work again could
// succeed, the classification used by managed transactions applied to err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var limit *TransactionExecutionLimit
	if errors.As(err, &limit) {
		return false
	}
	return retry.IsRetryable(err)
}
