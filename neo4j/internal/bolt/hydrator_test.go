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
	"testing"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/dbtype"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/packstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHydrateRejectsLegacyDateTimeTags(t *testing.T) {
	h := &hydrator{boltMinor: 4}
	for _, tag := range []byte{'F', 'f'} {
		_, err := h.hydrate(packstream.StructTag(tag), []any{int64(0), int64(0), int64(0)})
		require.Error(t, err)
		protocolErr := &db.ProtocolError{}
		assert.ErrorAs(t, err, &protocolErr)
	}
}

func TestHydrateNode(t *testing.T) {
	h := &hydrator{}
	x, err := h.hydrate('N', []any{
		int64(42),
		[]any{"Person", "Actor"},
		map[string]any{"name": "Carrie"},
		"4:deadbeef:42",
	})
	require.NoError(t, err)
	node := x.(dbtype.Node)
	assert.Equal(t, int64(42), node.Id)
	assert.Equal(t, "4:deadbeef:42", node.ElementId)
	assert.Equal(t, []string{"Person", "Actor"}, node.Labels)
	assert.Equal(t, "Carrie", node.Props["name"])
}

func TestHydratePathDirections(t *testing.T) {
	h := &hydrator{}

	n1 := dbtype.Node{Id: 1, ElementId: "e1"}
	n2 := dbtype.Node{Id: 2, ElementId: "e2"}
	n3 := dbtype.Node{Id: 3, ElementId: "e3"}
	knows := &relNode{id: 10, elementId: "r10", name: "KNOWS"}
	likes := &relNode{id: 11, elementId: "r11", name: "LIKES"}

	// (n1)-[KNOWS]->(n2)<-[LIKES]-(n3): the second index is negative, the
	// relationship points against the walking direction.
	x, err := h.hydrate('P', []any{
		[]any{n1, n2, n3},
		[]any{knows, likes},
		[]any{int64(1), int64(1), int64(-2), int64(2)},
	})
	require.NoError(t, err)
	path := x.(dbtype.Path)
	require.Len(t, path.Relationships, 2)

	assert.Equal(t, "KNOWS", path.Relationships[0].Type)
	assert.Equal(t, int64(1), path.Relationships[0].StartId)
	assert.Equal(t, int64(2), path.Relationships[0].EndId)

	assert.Equal(t, "LIKES", path.Relationships[1].Type)
	assert.Equal(t, int64(3), path.Relationships[1].StartId)
	assert.Equal(t, int64(2), path.Relationships[1].EndId)
}

// Path indexes come off the wire and must be range checked before use, a
// malformed server response surfaces as a protocol error instead of a panic.
func TestHydratePathRejectsBadIndexes(t *testing.T) {
	h := &hydrator{}
	n1 := dbtype.Node{Id: 1, ElementId: "e1"}
	n2 := dbtype.Node{Id: 2, ElementId: "e2"}
	knows := &relNode{id: 10, elementId: "r10", name: "KNOWS"}

	cases := map[string][]any{
		"zero relationship index":         {int64(0), int64(1)},
		"relationship index out of range": {int64(5), int64(1)},
		"negative node index":             {int64(1), int64(-1)},
		"node index out of range":         {int64(1), int64(7)},
		"odd number of indexes":           {int64(1)},
	}
	for name, indexes := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.hydrate('P', []any{
				[]any{n1, n2},
				[]any{knows},
				indexes,
			})
			require.Error(t, err)
			protocolErr := &db.ProtocolError{}
			assert.ErrorAs(t, err, &protocolErr)
		})
	}
}

func TestHydrateSingleNodePath(t *testing.T) {
	h := &hydrator{}
	n1 := dbtype.Node{Id: 1, ElementId: "e1"}
	x, err := h.hydrate('P', []any{[]any{n1}, []any{}, []any{}})
	require.NoError(t, err)
	path := x.(dbtype.Path)
	assert.Len(t, path.Nodes, 1)
	assert.Empty(t, path.Relationships)
}

func TestHydrateDate(t *testing.T) {
	h := &hydrator{}
	x, err := h.hydrate('D', []any{int64(19000)})
	require.NoError(t, err)
	date := time.Time(x.(dbtype.Date))
	assert.Equal(t, 2022, date.Year())
	assert.Equal(t, time.January, date.Month())
	assert.Equal(t, 8, date.Day())
}

func TestHydrateUTCDateTimeOffset(t *testing.T) {
	h := &hydrator{}
	x, err := h.hydrate('I', []any{int64(1661515200), int64(123), int64(7200)})
	require.NoError(t, err)
	moment := x.(time.Time)
	_, offset := moment.Zone()
	assert.Equal(t, 7200, offset)
	assert.Equal(t, int64(1661515200), moment.Unix())
	assert.Equal(t, 123, moment.Nanosecond())
}

func TestHydrateUTCDateTimeZone(t *testing.T) {
	h := &hydrator{}
	x, err := h.hydrate('i', []any{int64(1661515200), int64(0), "Europe/Stockholm"})
	require.NoError(t, err)
	moment := x.(time.Time)
	assert.Equal(t, "Europe/Stockholm", moment.Location().String())
	assert.Equal(t, int64(1661515200), moment.Unix())
}

func TestDehydrateRoundTripsDateTime(t *testing.T) {
	h := &hydrator{}
	zone := time.FixedZone("Offset", 3600)
	moment := time.Date(2022, 8, 26, 13, 0, 0, 42, zone)

	packed, err := dehydrate(moment)
	require.NoError(t, err)
	assert.Equal(t, packstream.StructTag('I'), packed.Tag)

	x, err := h.hydrate(packed.Tag, packed.Fields)
	require.NoError(t, err)
	back := x.(time.Time)
	assert.True(t, moment.Equal(back))
	_, offset := back.Zone()
	assert.Equal(t, 3600, offset)
}
