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

package packstream

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Unpacker decodes packstream values from a buffer that may be filled
// piecemeal, as bytes arrive from a socket. When the buffer ends in the
// middle of a value, Unpack returns ErrIncomplete and rewinds to the start
// of the value; feeding more bytes and calling Unpack again resumes cleanly.
// Any other error is a protocol error and fatal to the source connection.
type Unpacker struct {
	buf []byte
	off int
}

// Reset discards all buffered state and starts over on buf.
func (u *Unpacker) Reset(buf []byte) {
	u.buf = buf
	u.off = 0
}

// Feed appends more bytes received from the network.
func (u *Unpacker) Feed(p []byte) {
	if u.off == len(u.buf) {
		// Everything consumed, no need to grow
		u.buf = append(u.buf[:0], p...)
		u.off = 0
		return
	}
	u.buf = append(u.buf, p...)
}

// Rest returns the number of unconsumed bytes.
func (u *Unpacker) Rest() int {
	return len(u.buf) - u.off
}

func (u *Unpacker) read(n uint32) ([]byte, error) {
	if uint32(u.Rest()) < n {
		return nil, ErrIncomplete
	}
	b := u.buf[u.off : u.off+int(n)]
	u.off += int(n)
	return b, nil
}

func (u *Unpacker) readByte() (byte, error) {
	b, err := u.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (u *Unpacker) readSize(marker byte, base byte) (uint32, error) {
	switch marker - base {
	case 0:
		n, err := u.readByte()
		return uint32(n), err
	case 1:
		b, err := u.read(2)
		if err != nil {
			return 0, err
		}
		return uint32(binary.BigEndian.Uint16(b)), nil
	default:
		b, err := u.read(4)
		if err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(b), nil
	}
}

// Unpack decodes the next value. hydrate is invoked for every structure
// encountered, protocol messages and domain types alike.
func (u *Unpacker) Unpack(hydrate Hydrate) (any, error) {
	mark := u.off
	x, err := u.unpack(hydrate)
	if err == ErrIncomplete {
		u.off = mark
	}
	return x, err
}

func (u *Unpacker) unpack(hydrate Hydrate) (any, error) {
	marker, err := u.readByte()
	if err != nil {
		return nil, err
	}

	switch {
	case marker < 0x80:
		return int64(marker), nil
	case marker >= 0xf0:
		return int64(marker) - 0x100, nil
	case marker < 0x90:
		return u.readStr(uint32(marker - 0x80))
	case marker < 0xa0:
		return u.readList(hydrate, uint32(marker-0x90))
	case marker < 0xb0:
		return u.readMap(hydrate, uint32(marker-0xa0))
	case marker < 0xc0:
		return u.readStruct(hydrate, int(marker-0xb0))
	}

	switch marker {
	case 0xc0:
		return nil, nil
	case 0xc1:
		b, err := u.read(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case 0xc2:
		return false, nil
	case 0xc3:
		return true, nil
	case 0xc8:
		b, err := u.readByte()
		if err != nil {
			return nil, err
		}
		return int64(int8(b)), nil
	case 0xc9:
		b, err := u.read(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case 0xca:
		b, err := u.read(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case 0xcb:
		b, err := u.read(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case 0xcc, 0xcd, 0xce:
		n, err := u.readSize(marker, 0xcc)
		if err != nil {
			return nil, err
		}
		b, err := u.read(n)
		if err != nil {
			return nil, err
		}
		// Copy, the underlying buffer is reused between messages
		out := make([]byte, n)
		copy(out, b)
		return out, nil
	case 0xd0, 0xd1, 0xd2:
		n, err := u.readSize(marker, 0xd0)
		if err != nil {
			return nil, err
		}
		return u.readStr(n)
	case 0xd4, 0xd5, 0xd6:
		n, err := u.readSize(marker, 0xd4)
		if err != nil {
			return nil, err
		}
		return u.readList(hydrate, n)
	case 0xd8, 0xd9, 0xda:
		n, err := u.readSize(marker, 0xd8)
		if err != nil {
			return nil, err
		}
		return u.readMap(hydrate, n)
	}

	return nil, &IllegalFormatError{Msg: fmt.Sprintf("unknown marker: %02x", marker)}
}

func (u *Unpacker) readStr(n uint32) (any, error) {
	b, err := u.read(n)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (u *Unpacker) readList(hydrate Hydrate, n uint32) (any, error) {
	// The declared size comes off the wire, cap the allocation by what the
	// buffer can possibly hold: every element takes at least one byte.
	list := make([]any, 0, min(n, uint32(u.Rest())))
	for i := uint32(0); i < n; i++ {
		x, err := u.unpack(hydrate)
		if err != nil {
			return nil, err
		}
		list = append(list, x)
	}
	return list, nil
}

func (u *Unpacker) readMap(hydrate Hydrate, n uint32) (any, error) {
	// Wire-declared size, see readList. Every entry takes at least two bytes.
	m := make(map[string]any, min(n, uint32(u.Rest())/2))
	for i := uint32(0); i < n; i++ {
		kx, err := u.unpack(hydrate)
		if err != nil {
			return nil, err
		}
		k, ok := kx.(string)
		if !ok {
			return nil, &IllegalFormatError{Msg: fmt.Sprintf("map key is not a string: %T", kx)}
		}
		v, err := u.unpack(hydrate)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func (u *Unpacker) readStruct(hydrate Hydrate, numFields int) (any, error) {
	tag, err := u.readByte()
	if err != nil {
		return nil, err
	}
	fields := make([]any, numFields)
	for i := range fields {
		fields[i], err = u.unpack(hydrate)
		if err != nil {
			return nil, err
		}
	}
	return hydrate(StructTag(tag), fields)
}
