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
	"context"
	"encoding/binary"
	"io"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/racing"
)

const maxChunkSize = 0xffff

// chunker wraps each message in 16-bit size-prefixed chunks, terminated by a
// zero-size chunk. Several messages may be queued and sent with a single
// write, that is the transport half of request pipelining.
type chunker struct {
	buf      []byte
	sizePos  int // Position of current chunk's size prefix, -1 when outside a message
}

func newChunker() chunker {
	return chunker{
		buf:     make([]byte, 0, 1024),
		sizePos: -1,
	}
}

func (c *chunker) beginMessage() {
	c.sizePos = len(c.buf)
	c.buf = append(c.buf, 0x00, 0x00)
}

func (c *chunker) endMessage() {
	c.closeChunk()
	c.buf = append(c.buf, 0x00, 0x00)
	c.sizePos = -1
}

func (c *chunker) closeChunk() {
	size := len(c.buf) - c.sizePos - 2
	binary.BigEndian.PutUint16(c.buf[c.sizePos:], uint16(size))
}

// Write implements io.Writer for the packer, opening new chunks as the
// current one fills up.
func (c *chunker) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		inChunk := len(c.buf) - c.sizePos - 2
		room := maxChunkSize - inChunk
		if room == 0 {
			c.closeChunk()
			c.sizePos = len(c.buf)
			c.buf = append(c.buf, 0x00, 0x00)
			continue
		}
		n := len(p)
		if n > room {
			n = room
		}
		c.buf = append(c.buf, p[:n]...)
		written += n
		p = p[n:]
	}
	return written, nil
}

// send writes all queued messages to the connection and resets the buffer.
func (c *chunker) send(ctx context.Context, wr io.Writer) error {
	_, err := racing.NewRacingWriter(wr).Write(ctx, c.buf)
	c.buf = c.buf[:0]
	c.sizePos = -1
	return err
}
