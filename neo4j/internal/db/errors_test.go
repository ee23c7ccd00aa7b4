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

package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeo4jErrorParse(t *testing.T) {
	err := &Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}
	assert.Equal(t, "ClientError", err.Classification())
	assert.Equal(t, "Statement", err.Category())
	assert.Equal(t, "SyntaxError", err.Title())
}

// The server reports some errors with codes whose classification does not
// match how clients must treat them. Those exact codes are rewritten on
// receipt, all others are left alone.
func TestNeo4jErrorReclassification(t *testing.T) {
	cases := []struct {
		in        string
		out       string
		retriable bool
	}{
		{
			in:        "Neo.TransientError.Transaction.Terminated",
			out:       "Neo.ClientError.Transaction.Terminated",
			retriable: false,
		},
		{
			in:        "Neo.TransientError.Transaction.LockClientStopped",
			out:       "Neo.ClientError.Transaction.LockClientStopped",
			retriable: false,
		},
		{
			// Code stays, but it is retryable despite being a client error.
			in:        "Neo.ClientError.Security.AuthorizationExpired",
			out:       "Neo.ClientError.Security.AuthorizationExpired",
			retriable: true,
		},
		{
			in:        "Neo.ClientError.Cluster.NotALeader",
			out:       "Neo.ClientError.Cluster.NotALeader",
			retriable: true,
		},
		{
			in:        "Neo.ClientError.General.ForbiddenOnReadOnlyDatabase",
			out:       "Neo.ClientError.General.ForbiddenOnReadOnlyDatabase",
			retriable: true,
		},
		{
			in:        "Neo.TransientError.General.MemoryPoolOutOfMemoryError",
			out:       "Neo.TransientError.General.MemoryPoolOutOfMemoryError",
			retriable: true,
		},
		{
			in:        "Neo.ClientError.Statement.SyntaxError",
			out:       "Neo.ClientError.Statement.SyntaxError",
			retriable: false,
		},
		{
			in:        "Neo.DatabaseError.General.UnknownError",
			out:       "Neo.DatabaseError.General.UnknownError",
			retriable: false,
		},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			err := &Neo4jError{Code: c.in}
			assert.Equal(t, c.retriable, err.IsRetriable(), "retriable")
			assert.Equal(t, c.out, err.Code, "code after parse")
		})
	}
}

func TestNeo4jErrorSecurity(t *testing.T) {
	err := &Neo4jError{Code: "Neo.ClientError.Security.Unauthorized"}
	assert.True(t, err.HasSecurityCode())
	assert.True(t, err.IsAuthenticationFailed())
	assert.False(t, err.IsRetriable())

	err = &Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}
	assert.False(t, err.HasSecurityCode())
}
