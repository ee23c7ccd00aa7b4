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
	"io"
	"math"
	"reflect"
)

type Packer struct {
	wr        io.Writer
	dehydrate Dehydrate
}

func NewPacker(wr io.Writer, dehydrate Dehydrate) *Packer {
	if dehydrate == nil {
		dehydrate = func(x any) (*Struct, error) {
			return nil, &UnsupportedTypeError{T: reflect.TypeOf(x)}
		}
	}
	return &Packer{wr: wr, dehydrate: dehydrate}
}

// PackStruct packs a structure without requiring the caller to build a
// Struct value first.
func (p *Packer) PackStruct(tag StructTag, fields ...any) error {
	return p.writeStruct(&Struct{Tag: tag, Fields: fields})
}

func (p *Packer) write(buf []byte) error {
	_, err := p.wr.Write(buf)
	return err
}

func (p *Packer) writeStruct(s *Struct) error {
	if len(s.Fields) > 0x0f {
		return &OverflowError{Msg: fmt.Sprintf("struct with %d fields", len(s.Fields))}
	}
	if err := p.write([]byte{0xb0 + byte(len(s.Fields)), byte(s.Tag)}); err != nil {
		return err
	}
	for _, f := range s.Fields {
		if err := p.Pack(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) writeInt(i int64) error {
	switch {
	case -0x10 <= i && i < 0x80:
		return p.write([]byte{byte(i)})
	case -0x80 <= i && i < -0x10:
		return p.write([]byte{0xc8, byte(i)})
	case -0x8000 <= i && i < 0x8000:
		buf := [3]byte{0xc9}
		binary.BigEndian.PutUint16(buf[1:], uint16(i))
		return p.write(buf[:])
	case -0x80000000 <= i && i < 0x80000000:
		buf := [5]byte{0xca}
		binary.BigEndian.PutUint32(buf[1:], uint32(i))
		return p.write(buf[:])
	default:
		buf := [9]byte{0xcb}
		binary.BigEndian.PutUint64(buf[1:], uint64(i))
		return p.write(buf[:])
	}
}

func (p *Packer) writeFloat(f float64) error {
	buf := [9]byte{0xc1}
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(f))
	return p.write(buf[:])
}

// Writes the header of a string, list or map. The tiny form packs the size
// into the marker nibble, larger sizes get an 8, 16 or 32 bit prefix.
func (p *Packer) writeHeader(n int, tiny, long byte) error {
	l := int64(n)
	switch {
	case l < 0x10:
		return p.write([]byte{tiny + byte(l)})
	case l < 0x100:
		return p.write([]byte{long, byte(l)})
	case l < 0x10000:
		buf := [3]byte{long + 1}
		binary.BigEndian.PutUint16(buf[1:], uint16(l))
		return p.write(buf[:])
	case l <= MaxContainerSize:
		buf := [5]byte{long + 2}
		binary.BigEndian.PutUint32(buf[1:], uint32(l))
		return p.write(buf[:])
	default:
		return &OverflowError{Msg: fmt.Sprintf("container of size %d", l)}
	}
}

func (p *Packer) writeString(s string) error {
	if err := p.writeHeader(len(s), 0x80, 0xd0); err != nil {
		return err
	}
	return p.write([]byte(s))
}

func (p *Packer) writeListHeader(n int) error {
	return p.writeHeader(n, 0x90, 0xd4)
}

func (p *Packer) writeMapHeader(n int) error {
	return p.writeHeader(n, 0xa0, 0xd8)
}

func (p *Packer) writeBytes(b []byte) error {
	l := int64(len(b))
	switch {
	case l < 0x100:
		if err := p.write([]byte{0xcc, byte(l)}); err != nil {
			return err
		}
	case l < 0x10000:
		buf := [3]byte{0xcd}
		binary.BigEndian.PutUint16(buf[1:], uint16(l))
		if err := p.write(buf[:]); err != nil {
			return err
		}
	case l <= MaxContainerSize:
		buf := [5]byte{0xce}
		binary.BigEndian.PutUint32(buf[1:], uint32(l))
		if err := p.write(buf[:]); err != nil {
			return err
		}
	default:
		return &OverflowError{Msg: fmt.Sprintf("byte array of size %d", l)}
	}
	return p.write(b)
}

func (p *Packer) writeBool(b bool) error {
	if b {
		return p.write([]byte{0xc3})
	}
	return p.write([]byte{0xc2})
}

func (p *Packer) writeNil() error {
	return p.write([]byte{0xc0})
}

func (p *Packer) tryDehydrate(x any) error {
	s, err := p.dehydrate(x)
	if err != nil {
		return err
	}
	if s == nil {
		return p.writeNil()
	}
	return p.writeStruct(s)
}

func (p *Packer) writeSlice(x any) error {
	// Fast paths for the slice types that actually occur in driver traffic,
	// reflection for the rest.
	switch v := x.(type) {
	case []byte:
		return p.writeBytes(v)
	case []any:
		if err := p.writeListHeader(len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := p.Pack(e); err != nil {
				return err
			}
		}
		return nil
	case []string:
		if err := p.writeListHeader(len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := p.writeString(e); err != nil {
				return err
			}
		}
		return nil
	case []int64:
		if err := p.writeListHeader(len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := p.writeInt(e); err != nil {
				return err
			}
		}
		return nil
	case []int:
		if err := p.writeListHeader(len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := p.writeInt(int64(e)); err != nil {
				return err
			}
		}
		return nil
	case []float64:
		if err := p.writeListHeader(len(v)); err != nil {
			return err
		}
		for _, e := range v {
			if err := p.writeFloat(e); err != nil {
				return err
			}
		}
		return nil
	default:
		rv := reflect.ValueOf(x)
		if err := p.writeListHeader(rv.Len()); err != nil {
			return err
		}
		for i := 0; i < rv.Len(); i++ {
			if err := p.Pack(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
}

func (p *Packer) writeMap(x any) error {
	switch v := x.(type) {
	case map[string]any:
		if err := p.writeMapHeader(len(v)); err != nil {
			return err
		}
		for k, e := range v {
			if err := p.writeString(k); err != nil {
				return err
			}
			if err := p.Pack(e); err != nil {
				return err
			}
		}
		return nil
	case map[string]string:
		if err := p.writeMapHeader(len(v)); err != nil {
			return err
		}
		for k, e := range v {
			if err := p.writeString(k); err != nil {
				return err
			}
			if err := p.writeString(e); err != nil {
				return err
			}
		}
		return nil
	case map[string]int:
		if err := p.writeMapHeader(len(v)); err != nil {
			return err
		}
		for k, e := range v {
			if err := p.writeString(k); err != nil {
				return err
			}
			if err := p.writeInt(int64(e)); err != nil {
				return err
			}
		}
		return nil
	default:
		rv := reflect.ValueOf(x)
		if rv.Type().Key().Kind() != reflect.String {
			return &UnsupportedTypeError{T: reflect.TypeOf(x)}
		}
		if err := p.writeMapHeader(rv.Len()); err != nil {
			return err
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := p.writeString(iter.Key().String()); err != nil {
				return err
			}
			if err := p.Pack(iter.Value().Interface()); err != nil {
				return err
			}
		}
		return nil
	}
}

func overflowsInt64(u uint64) error {
	if u > math.MaxInt64 {
		return &OverflowError{Msg: "uint64 does not fit in int64"}
	}
	return nil
}

func (p *Packer) Pack(x any) error {
	if x == nil {
		return p.writeNil()
	}

	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Bool:
		return p.writeBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return p.writeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if err := overflowsInt64(u); err != nil {
			return err
		}
		return p.writeInt(int64(u))
	case reflect.Float32, reflect.Float64:
		return p.writeFloat(v.Float())
	case reflect.String:
		return p.writeString(v.String())
	case reflect.Ptr:
		if v.IsNil() {
			return p.writeNil()
		}
		if s, ok := x.(*Struct); ok {
			return p.writeStruct(s)
		}
		if reflect.Indirect(v).Kind() == reflect.Struct {
			return p.tryDehydrate(x)
		}
		return p.Pack(reflect.Indirect(v).Interface())
	case reflect.Struct:
		return p.tryDehydrate(x)
	case reflect.Slice:
		return p.writeSlice(x)
	case reflect.Map:
		return p.writeMap(x)
	}
	return &UnsupportedTypeError{T: reflect.TypeOf(x)}
}
