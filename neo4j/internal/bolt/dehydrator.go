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
	"reflect"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/dbtype"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/packstream"
)

// dehydrate maps driver value types onto their wire structures. Graph
// entities (nodes, relationships, paths) are deliberately absent, they only
// travel server to client.
func dehydrate(x any) (*packstream.Struct, error) {
	switch v := x.(type) {
	case dbtype.Point2D:
		return &packstream.Struct{
			Tag:    'X',
			Fields: []any{int64(v.SpatialRefId), v.X, v.Y},
		}, nil
	case dbtype.Point3D:
		return &packstream.Struct{
			Tag:    'Y',
			Fields: []any{int64(v.SpatialRefId), v.X, v.Y, v.Z},
		}, nil
	case dbtype.Duration:
		return &packstream.Struct{
			Tag:    'E',
			Fields: []any{v.Months, v.Days, v.Seconds, int64(v.Nanos)},
		}, nil
	case dbtype.Date:
		return dehydrateDate(time.Time(v)), nil
	case dbtype.Time:
		return dehydrateTime(time.Time(v)), nil
	case dbtype.LocalTime:
		return dehydrateLocalTime(time.Time(v)), nil
	case dbtype.LocalDateTime:
		return dehydrateLocalDateTime(time.Time(v)), nil
	case time.Time:
		return dehydrateDateTime(v)
	default:
		return nil, &packstream.UnsupportedTypeError{T: reflect.TypeOf(x)}
	}
}

func dehydrateDate(t time.Time) *packstream.Struct {
	secs := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
	return &packstream.Struct{Tag: 'D', Fields: []any{secs / 86400}}
}

func dehydrateTime(t time.Time) *packstream.Struct {
	_, offset := t.Zone()
	nanos := int64(time.Hour)*int64(t.Hour()) +
		int64(time.Minute)*int64(t.Minute()) +
		int64(time.Second)*int64(t.Second()) +
		int64(t.Nanosecond())
	return &packstream.Struct{Tag: 'T', Fields: []any{nanos, int64(offset)}}
}

func dehydrateLocalTime(t time.Time) *packstream.Struct {
	nanos := int64(time.Hour)*int64(t.Hour()) +
		int64(time.Minute)*int64(t.Minute()) +
		int64(time.Second)*int64(t.Second()) +
		int64(t.Nanosecond())
	return &packstream.Struct{Tag: 't', Fields: []any{nanos}}
}

func dehydrateLocalDateTime(t time.Time) *packstream.Struct {
	// Interpret the wall-clock as if it were UTC to get epoch seconds
	// without any zone adjustment.
	utc := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return &packstream.Struct{Tag: 'd', Fields: []any{utc.Unix(), int64(t.Nanosecond())}}
}

// dehydrateDateTime packs a zoned datetime using the UTC-based structures.
// A fixed-offset zone becomes tag 'I', a named zone tag 'i'.
func dehydrateDateTime(t time.Time) (*packstream.Struct, error) {
	secs := t.Unix()
	nanos := int64(t.Nanosecond())
	zone, offset := t.Zone()
	if zone == "Offset" {
		return &packstream.Struct{Tag: 'I', Fields: []any{secs, nanos, int64(offset)}}, nil
	}
	return &packstream.Struct{Tag: 'i', Fields: []any{secs, nanos, t.Location().String()}}, nil
}
