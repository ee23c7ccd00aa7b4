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
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/packstream"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/racing"
)

// incoming assembles chunked message bytes from the socket and hydrates them
// into response values. Chunks are fed to the unpacker as they arrive, the
// final decode happens when the zero-size end-of-message chunk is seen.
type incoming struct {
	buf             []byte
	unp             packstream.Unpacker
	hyd             hydrator
	connReadTimeout time.Duration
}

func (i *incoming) next(ctx context.Context, rd io.Reader) (any, error) {
	if i.connReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.connReadTimeout)
		defer cancel()
	}
	reader := racing.NewRacingReader(rd)

	i.unp.Reset(nil)
	sizeBuf := []byte{0x00, 0x00}
	received := false
	for {
		if _, err := reader.ReadFull(ctx, sizeBuf); err != nil {
			return nil, err
		}
		size := int(binary.BigEndian.Uint16(sizeBuf))
		if size == 0 {
			if !received {
				// Keep-alive chunk between messages
				continue
			}
			// End of message
			break
		}
		received = true
		if cap(i.buf) < size {
			i.buf = make([]byte, size)
		}
		chunk := i.buf[:size]
		if _, err := reader.ReadFull(ctx, chunk); err != nil {
			return nil, err
		}
		i.unp.Feed(chunk)
	}
	msg, err := i.unp.Unpack(i.hyd.hydrate)
	if err != nil {
		return nil, err
	}
	if i.unp.Rest() > 0 {
		return nil, &packstream.IllegalFormatError{Msg: "trailing bytes after message"}
	}
	return msg, nil
}
