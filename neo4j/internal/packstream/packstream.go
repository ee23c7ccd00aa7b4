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

// Package packstream implements the tagged binary serialization format used
// by the Bolt protocol. Values are self-describing: a marker byte either
// contains the value itself (tiny ints), packs the size into its low nibble
// (short strings, lists and maps) or announces an 8/16/32 bit size prefix.
// Composite domain values travel as structures: a field count, a signature
// byte and the fields themselves.
package packstream

type StructTag byte

// Struct is a tagged fixed-arity composite, used both for protocol messages
// and for domain types such as nodes and temporal values.
type Struct struct {
	Tag    StructTag
	Fields []any
}

// Dehydrate converts a custom type into a Struct. Registered by the caller,
// invoked by the packer when it encounters a type it doesn't know.
type Dehydrate func(x any) (*Struct, error)

// Hydrate builds a runtime value from a decoded structure. Registered by the
// caller, invoked by the unpacker for every structure in the stream.
type Hydrate func(tag StructTag, fields []any) (any, error)

// MaxContainerSize is the largest string/bytes/list/map the wire format can
// describe.
const MaxContainerSize = 0xffff_ffff
