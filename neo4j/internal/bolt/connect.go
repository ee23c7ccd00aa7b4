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

// Package bolt contains the Bolt protocol implementation.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/errorutil"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/racing"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

// Offered protocol versions, most preferred first. The second byte of a
// proposal is a back-range: {0, 4, 4, 5} offers 5.4 down to 5.0.
var versions = [4][4]byte{
	{0, 4, 4, 5},
	{0, 0, 0, 0},
	{0, 0, 0, 0},
	{0, 0, 0, 0},
}

// Connect performs the Bolt handshake on an established transport connection
// and authenticates, returning a ready to use database connection.
func Connect(
	ctx context.Context,
	serverName string,
	conn net.Conn,
	auth map[string]any,
	userAgent string,
	routingContext map[string]string,
	logger log.Logger,
	boltLogger log.BoltLogger,
	timer func() time.Time,
	connReadTimeout time.Duration,
) (db.Connection, error) {
	// Perform Bolt handshake to negotiate the protocol version.
	// Send handshake identifier followed by the offered versions in
	// priority order.
	handshake := []byte{
		0x60, 0x60, 0xb0, 0x17,
		versions[0][0], versions[0][1], versions[0][2], versions[0][3],
		versions[1][0], versions[1][1], versions[1][2], versions[1][3],
		versions[2][0], versions[2][1], versions[2][2], versions[2][3],
		versions[3][0], versions[3][1], versions[3][2], versions[3][3],
	}
	_, err := racing.NewRacingWriter(conn).Write(ctx, handshake)
	if err != nil {
		return nil, err
	}

	// Receive the accepted server version.
	buf := make([]byte, 4)
	_, err = racing.NewRacingReader(conn).ReadFull(ctx, buf)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(buf, []byte{0x48, 0x54, 0x54, 0x50}) {
		// Server answered with the beginning of an HTTP response, the
		// address points at the wrong port.
		return nil, &errorutil.UsageError{
			Message: fmt.Sprintf("server on %s responded with HTTP, the configured port is likely the HTTP port of the server rather than the Bolt port", serverName),
		}
	}

	major := buf[3]
	minor := buf[2]
	if major != 5 {
		return nil, &errorutil.UsageError{
			Message: fmt.Sprintf("server did not accept any of the offered Bolt versions, proposed %v, received %v", versions, buf),
		}
	}

	boltConn := NewBolt5(serverName, conn, logger, boltLogger, timer, connReadTimeout)
	if err = boltConn.Connect(ctx, int(minor), auth, userAgent, routingContext); err != nil {
		boltConn.Close(ctx)
		return nil, err
	}
	return boltConn, nil
}
