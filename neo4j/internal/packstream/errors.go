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
	"errors"
	"fmt"
	"reflect"
)

// ErrIncomplete signals that the unpacker ran out of buffered bytes in the
// middle of a value. The unpacker rewinds to the start of the current value
// so that decoding can be retried after more bytes have been fed.
var ErrIncomplete = errors.New("packstream: need more data")

// IllegalFormatError is a protocol error, the byte stream can not be
// resynchronized and the connection it came from must be discarded.
type IllegalFormatError struct {
	Msg string
}

func (e *IllegalFormatError) Error() string {
	return fmt.Sprintf("packstream: illegal format: %s", e.Msg)
}

// OverflowError is returned when a value exceeds what the wire format can
// represent, for instance a container larger than 2^32-1 entries.
type OverflowError struct {
	Msg string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("packstream: overflow: %s", e.Msg)
}

// UnsupportedTypeError is returned when packing a Go type that has no
// packstream representation and no registered dehydrator.
type UnsupportedTypeError struct {
	T reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("packstream: unsupported type: %s", e.T)
}
