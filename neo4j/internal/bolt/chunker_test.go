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

package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
)

// dechunk reassembles the messages of a raw chunk stream.
func dechunk(t *testing.T, data []byte) [][]byte {
	t.Helper()
	var messages [][]byte
	var current []byte
	started := false
	for len(data) > 0 {
		require.GreaterOrEqual(t, len(data), 2)
		size := binary.BigEndian.Uint16(data[:2])
		data = data[2:]
		if size == 0 {
			if started {
				messages = append(messages, current)
				current = nil
				started = false
			}
			continue
		}
		require.GreaterOrEqual(t, len(data), int(size))
		current = append(current, data[:size]...)
		data = data[size:]
		started = true
	}
	require.False(t, started, "stream ended inside a message")
	return messages
}

func TestChunkerSmallMessages(t *testing.T) {
	c := newChunker()
	c.beginMessage()
	_, err := c.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	c.endMessage()
	c.beginMessage()
	_, err = c.Write([]byte{4})
	require.NoError(t, err)
	c.endMessage()

	var out bytes.Buffer
	require.NoError(t, c.send(context.Background(), &out))

	messages := dechunk(t, out.Bytes())
	require.Equal(t, 2, len(messages))
	assert.Equal(t, []byte{1, 2, 3}, messages[0])
	assert.Equal(t, []byte{4}, messages[1])
}

// A message larger than the maximum chunk size must be split into several
// chunks, none exceeding 0xffff bytes.
func TestChunkerSplitsLargeMessage(t *testing.T) {
	payload := make([]byte, 0x10000+100)
	for i := range payload {
		payload[i] = byte(i)
	}

	c := newChunker()
	c.beginMessage()
	_, err := c.Write(payload)
	require.NoError(t, err)
	c.endMessage()

	var out bytes.Buffer
	require.NoError(t, c.send(context.Background(), &out))

	// Check chunk sizes before reassembly.
	data := out.Bytes()
	for len(data) > 0 {
		size := binary.BigEndian.Uint16(data[:2])
		require.LessOrEqual(t, int(size), 0xffff)
		data = data[2+int(size):]
	}

	messages := dechunk(t, out.Bytes())
	require.Equal(t, 1, len(messages))
	assert.Equal(t, payload, messages[0])
}

func TestIncomingSkipsKeepAliveChunks(t *testing.T) {
	// NOOP, then a RECORD struct split over three chunks, then end of
	// message.
	var raw bytes.Buffer
	raw.Write([]byte{0, 0})
	raw.Write([]byte{0, 1, 0xb1})
	raw.Write([]byte{0, 2, byte(msgRecord), 0x91})
	raw.Write([]byte{0, 1, 0x07})
	raw.Write([]byte{0, 0})

	in := &incoming{hyd: hydrator{}}
	x, err := in.next(context.Background(), &raw)
	require.NoError(t, err)
	rec, ok := x.(*db.Record)
	require.True(t, ok)
	require.Equal(t, []any{int64(7)}, rec.Values)
}
