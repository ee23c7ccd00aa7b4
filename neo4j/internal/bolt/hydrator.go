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
	"fmt"
	"time"

	"github.com/robsdedude/neo4j-go-driver/neo4j/dbtype"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/db"
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/packstream"
	"github.com/robsdedude/neo4j-go-driver/neo4j/log"
)

type ignored struct{}

// success wraps the metadata of a SUCCESS response. What the metadata means
// depends on what request it responds to, the accessors below extract the
// interesting parts.
type success struct {
	meta map[string]any
}

func (s *success) fields() []string {
	raw, _ := s.meta["fields"].([]any)
	if raw == nil {
		return nil
	}
	fields := make([]string, 0, len(raw))
	for _, x := range raw {
		if f, ok := x.(string); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

func (s *success) tfirst() int64 {
	t, _ := s.meta["t_first"].(int64)
	return t
}

func (s *success) qid() int64 {
	q, ok := s.meta["qid"].(int64)
	if !ok {
		return -1
	}
	return q
}

func (s *success) hasMore() bool {
	h, _ := s.meta["has_more"].(bool)
	return h
}

func (s *success) bookmark() string {
	b, _ := s.meta["bookmark"].(string)
	return b
}

func (s *success) connectionId() string {
	c, _ := s.meta["connection_id"].(string)
	return c
}

func (s *success) server() string {
	v, _ := s.meta["server"].(string)
	return v
}

func (s *success) db() string {
	d, _ := s.meta["db"].(string)
	return d
}

func (s *success) configurationHints() map[string]any {
	h, _ := s.meta["hints"].(map[string]any)
	return h
}

func (s *success) summary() *db.Summary {
	qtype, _ := s.meta["type"].(string)
	stmntType := db.StatementTypeUnknown
	switch qtype {
	case "r":
		stmntType = db.StatementTypeRead
	case "w":
		stmntType = db.StatementTypeWrite
	case "rw":
		stmntType = db.StatementTypeReadWrite
	case "s":
		stmntType = db.StatementTypeSchemaWrite
	}

	var counters map[string]int
	if stats, _ := s.meta["stats"].(map[string]any); len(stats) > 0 {
		counters = make(map[string]int, len(stats))
		for k, v := range stats {
			if c, _ := v.(int64); c > 0 {
				counters[k] = int(c)
			}
		}
	}

	var notifications []db.Notification
	if notificationsx, _ := s.meta["notifications"].([]any); len(notificationsx) > 0 {
		notifications = make([]db.Notification, 0, len(notificationsx))
		for _, x := range notificationsx {
			n, ok := x.(map[string]any)
			if !ok {
				continue
			}
			notification := db.Notification{}
			notification.Code, _ = n["code"].(string)
			notification.Title, _ = n["title"].(string)
			notification.Description, _ = n["description"].(string)
			notification.Severity, _ = n["severity"].(string)
			notifications = append(notifications, notification)
		}
	}

	tlast, _ := s.meta["t_last"].(int64)
	return &db.Summary{
		Bookmark:      s.bookmark(),
		StmntType:     stmntType,
		TLast:         tlast,
		Counters:      counters,
		Notifications: notifications,
	}
}

func (s *success) routingTable() (*db.RoutingTable, error) {
	rt, ok := s.meta["rt"].(map[string]any)
	if !ok {
		return nil, &db.ProtocolError{MessageType: "ROUTE success", Err: "missing rt"}
	}
	ttl, ok := rt["ttl"].(int64)
	if !ok {
		return nil, &db.ProtocolError{MessageType: "ROUTE success", Field: "ttl", Err: "missing or wrong type"}
	}
	database, _ := rt["db"].(string)
	serversx, ok := rt["servers"].([]any)
	if !ok {
		return nil, &db.ProtocolError{MessageType: "ROUTE success", Field: "servers", Err: "missing or wrong type"}
	}
	table := &db.RoutingTable{TimeToLive: int(ttl), DatabaseName: database}
	for _, serverx := range serversx {
		server, ok := serverx.(map[string]any)
		if !ok {
			return nil, &db.ProtocolError{MessageType: "ROUTE success", Field: "servers", Err: "bad entry"}
		}
		role, _ := server["role"].(string)
		addressesx, _ := server["addresses"].([]any)
		addresses := make([]string, 0, len(addressesx))
		for _, a := range addressesx {
			addr, _ := a.(string)
			addresses = append(addresses, addr)
		}
		switch role {
		case "READ":
			table.Readers = addresses
		case "WRITE":
			table.Writers = addresses
		case "ROUTE":
			table.Routers = addresses
		}
	}
	return table, nil
}

type hydrateFn func(h *hydrator, fields []any) (any, error)

// registry of structure hydration functions keyed by struct tag. Domain tags
// legal on Bolt 5.x only; the legacy offset-datetime tags of 4.x are not in
// the table so that decoding them surfaces as a protocol error.
var hydrationRegistry = map[packstream.StructTag]hydrateFn{
	msgSuccess: (*hydrator).success,
	msgIgnored: (*hydrator).ignored,
	msgFailure: (*hydrator).failure,
	msgRecord:  (*hydrator).record,
	'N':        (*hydrator).node,
	'R':        (*hydrator).relationship,
	'r':        (*hydrator).relNode,
	'P':        (*hydrator).path,
	'X':        (*hydrator).point2d,
	'Y':        (*hydrator).point3d,
	'D':        (*hydrator).date,
	'T':        (*hydrator).time,
	't':        (*hydrator).localTime,
	'd':        (*hydrator).localDateTime,
	'E':        (*hydrator).duration,
	'I':        (*hydrator).utcDateTimeOffset,
	'i':        (*hydrator).utcDateTimeZone,
}

type hydrator struct {
	boltLogger log.BoltLogger
	logId      string
	boltMinor  int
}

func (h *hydrator) hydrate(tag packstream.StructTag, fields []any) (any, error) {
	fn, ok := hydrationRegistry[tag]
	if !ok {
		return nil, &db.ProtocolError{Err: fmt.Sprintf("received struct tag not valid for Bolt 5.%d: %#02x", h.boltMinor, tag)}
	}
	return fn(h, fields)
}

func (h *hydrator) success(fields []any) (any, error) {
	meta, ok := fieldAsMap(fields, 0)
	if !ok {
		return nil, hydrationError("SUCCESS", fields)
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "SUCCESS %v", meta)
	}
	return &success{meta: meta}, nil
}

func (h *hydrator) ignored(fields []any) (any, error) {
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "IGNORED")
	}
	return &ignored{}, nil
}

func (h *hydrator) failure(fields []any) (any, error) {
	meta, ok := fieldAsMap(fields, 0)
	if !ok {
		return nil, hydrationError("FAILURE", fields)
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "FAILURE %v", meta)
	}
	code, _ := meta["code"].(string)
	msg, _ := meta["message"].(string)
	return &db.Neo4jError{Code: code, Msg: msg}, nil
}

func (h *hydrator) record(fields []any) (any, error) {
	values, ok := fieldAsList(fields, 0)
	if !ok {
		return nil, hydrationError("RECORD", fields)
	}
	if h.boltLogger != nil {
		h.boltLogger.LogServerMessage(h.logId, "RECORD %v", values)
	}
	return &db.Record{Values: values}, nil
}

func (h *hydrator) node(fields []any) (any, error) {
	if len(fields) != 4 {
		return nil, hydrationError("Node", fields)
	}
	id, iok := fields[0].(int64)
	labelsx, lok := fields[1].([]any)
	props, pok := fields[2].(map[string]any)
	elementId, eok := fields[3].(string)
	if !iok || !lok || !pok || !eok {
		return nil, hydrationError("Node", fields)
	}
	labels := make([]string, len(labelsx))
	for i, x := range labelsx {
		l, ok := x.(string)
		if !ok {
			return nil, hydrationError("Node", fields)
		}
		labels[i] = l
	}
	return dbtype.Node{Id: id, ElementId: elementId, Labels: labels, Props: props}, nil
}

func (h *hydrator) relationship(fields []any) (any, error) {
	if len(fields) != 8 {
		return nil, hydrationError("Relationship", fields)
	}
	id, iok := fields[0].(int64)
	startId, sok := fields[1].(int64)
	endId, eok := fields[2].(int64)
	relType, tok := fields[3].(string)
	props, pok := fields[4].(map[string]any)
	elementId, e1ok := fields[5].(string)
	startElementId, e2ok := fields[6].(string)
	endElementId, e3ok := fields[7].(string)
	if !iok || !sok || !eok || !tok || !pok || !e1ok || !e2ok || !e3ok {
		return nil, hydrationError("Relationship", fields)
	}
	return dbtype.Relationship{
		Id:             id,
		ElementId:      elementId,
		StartId:        startId,
		StartElementId: startElementId,
		EndId:          endId,
		EndElementId:   endElementId,
		Type:           relType,
		Props:          props,
	}, nil
}

// relNode is the compact relationship representation used inside paths.
type relNode struct {
	id        int64
	elementId string
	name      string
	props     map[string]any
}

func (h *hydrator) relNode(fields []any) (any, error) {
	if len(fields) != 4 {
		return nil, hydrationError("RelNode", fields)
	}
	id, iok := fields[0].(int64)
	name, nok := fields[1].(string)
	props, pok := fields[2].(map[string]any)
	elementId, eok := fields[3].(string)
	if !iok || !nok || !pok || !eok {
		return nil, hydrationError("RelNode", fields)
	}
	return &relNode{id: id, elementId: elementId, name: name, props: props}, nil
}

func (h *hydrator) path(fields []any) (any, error) {
	if len(fields) != 3 {
		return nil, hydrationError("Path", fields)
	}
	nodesx, nok := fields[0].([]any)
	relNodesx, rok := fields[1].([]any)
	indexesx, iok := fields[2].([]any)
	if !nok || !rok || !iok {
		return nil, hydrationError("Path", fields)
	}

	nodes := make([]dbtype.Node, len(nodesx))
	for i, x := range nodesx {
		n, ok := x.(dbtype.Node)
		if !ok {
			return nil, hydrationError("Path", fields)
		}
		nodes[i] = n
	}
	relNodes := make([]*relNode, len(relNodesx))
	for i, x := range relNodesx {
		r, ok := x.(*relNode)
		if !ok {
			return nil, hydrationError("Path", fields)
		}
		relNodes[i] = r
	}
	indexes := make([]int, len(indexesx))
	for i, x := range indexesx {
		p, ok := x.(int64)
		if !ok {
			return nil, hydrationError("Path", fields)
		}
		indexes[i] = int(p)
	}
	if (len(indexes) & 0x01) == 1 {
		return nil, hydrationError("Path", fields)
	}
	// The indexes come off the wire, never trust them: even positions are
	// 1-based signed relationship indexes, odd positions node indexes.
	for i, idx := range indexes {
		if i%2 == 0 {
			if idx == 0 || idx > len(relNodes) || idx < -len(relNodes) {
				return nil, &db.ProtocolError{MessageType: "Path", Field: "indices", Err: fmt.Sprintf("relationship index out of range: %d", idx)}
			}
		} else if idx < 0 || idx >= len(nodes) {
			return nil, &db.ProtocolError{MessageType: "Path", Field: "indices", Err: fmt.Sprintf("node index out of range: %d", idx)}
		}
	}

	return buildPath(nodes, relNodes, indexes), nil
}

// buildPath rebuilds the relationships of a path from the compact indexed
// wire representation. A positive index means the relationship points
// forward along the path, a negative one backwards. Indexes must have been
// range checked by the caller.
func buildPath(nodes []dbtype.Node, relNodes []*relNode, indexes []int) dbtype.Path {
	num := len(indexes) / 2
	if num == 0 {
		return dbtype.Path{Nodes: nodes}
	}

	rels := make([]dbtype.Relationship, 0, num)
	prev := nodes[0]
	for i := 0; i < num; i++ {
		relni := indexes[i*2]
		curr := nodes[indexes[i*2+1]]
		var rel dbtype.Relationship
		if relni < 0 {
			reln := relNodes[(-relni)-1]
			rel = dbtype.Relationship{
				Id: reln.id, ElementId: reln.elementId,
				StartId: curr.Id, StartElementId: curr.ElementId,
				EndId: prev.Id, EndElementId: prev.ElementId,
				Type: reln.name, Props: reln.props,
			}
		} else {
			reln := relNodes[relni-1]
			rel = dbtype.Relationship{
				Id: reln.id, ElementId: reln.elementId,
				StartId: prev.Id, StartElementId: prev.ElementId,
				EndId: curr.Id, EndElementId: curr.ElementId,
				Type: reln.name, Props: reln.props,
			}
		}
		rels = append(rels, rel)
		prev = curr
	}

	return dbtype.Path{Nodes: nodes, Relationships: rels}
}

func (h *hydrator) point2d(fields []any) (any, error) {
	if len(fields) != 3 {
		return nil, hydrationError("Point2D", fields)
	}
	srId, sok := fields[0].(int64)
	x, xok := fields[1].(float64)
	y, yok := fields[2].(float64)
	if !sok || !xok || !yok {
		return nil, hydrationError("Point2D", fields)
	}
	return dbtype.Point2D{SpatialRefId: uint32(srId), X: x, Y: y}, nil
}

func (h *hydrator) point3d(fields []any) (any, error) {
	if len(fields) != 4 {
		return nil, hydrationError("Point3D", fields)
	}
	srId, sok := fields[0].(int64)
	x, xok := fields[1].(float64)
	y, yok := fields[2].(float64)
	z, zok := fields[3].(float64)
	if !sok || !xok || !yok || !zok {
		return nil, hydrationError("Point3D", fields)
	}
	return dbtype.Point3D{SpatialRefId: uint32(srId), X: x, Y: y, Z: z}, nil
}

func (h *hydrator) date(fields []any) (any, error) {
	if len(fields) != 1 {
		return nil, hydrationError("Date", fields)
	}
	days, ok := fields[0].(int64)
	if !ok {
		return nil, hydrationError("Date", fields)
	}
	secs := days * 86400
	return dbtype.Date(time.Unix(secs, 0).UTC()), nil
}

func (h *hydrator) time(fields []any) (any, error) {
	if len(fields) != 2 {
		return nil, hydrationError("Time", fields)
	}
	nans, nok := fields[0].(int64)
	offs, ook := fields[1].(int64)
	if !nok || !ook {
		return nil, hydrationError("Time", fields)
	}
	secs := nans / int64(time.Second)
	nans -= secs * int64(time.Second)
	zone := time.FixedZone("Offset", int(offs))
	return dbtype.Time(time.Date(0, 1, 1, 0, 0, int(secs), int(nans), zone)), nil
}

func (h *hydrator) localTime(fields []any) (any, error) {
	if len(fields) != 1 {
		return nil, hydrationError("LocalTime", fields)
	}
	nans, ok := fields[0].(int64)
	if !ok {
		return nil, hydrationError("LocalTime", fields)
	}
	secs := nans / int64(time.Second)
	nans -= secs * int64(time.Second)
	return dbtype.LocalTime(time.Date(0, 1, 1, 0, 0, int(secs), int(nans), time.Local)), nil
}

func (h *hydrator) localDateTime(fields []any) (any, error) {
	if len(fields) != 2 {
		return nil, hydrationError("LocalDateTime", fields)
	}
	secs, sok := fields[0].(int64)
	nans, nok := fields[1].(int64)
	if !sok || !nok {
		return nil, hydrationError("LocalDateTime", fields)
	}
	t := time.Unix(secs, nans).UTC()
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
	return dbtype.LocalDateTime(t), nil
}

func (h *hydrator) duration(fields []any) (any, error) {
	if len(fields) != 4 {
		return nil, hydrationError("Duration", fields)
	}
	mon, mok := fields[0].(int64)
	day, dok := fields[1].(int64)
	sec, sok := fields[2].(int64)
	nan, nok := fields[3].(int64)
	if !mok || !dok || !sok || !nok {
		return nil, hydrationError("Duration", fields)
	}
	return dbtype.Duration{Months: mon, Days: day, Seconds: sec, Nanos: int(nan)}, nil
}

// utcDateTimeOffset hydrates the UTC-based datetime with a fixed offset,
// seconds are relative to the Unix epoch in UTC.
func (h *hydrator) utcDateTimeOffset(fields []any) (any, error) {
	if len(fields) != 3 {
		return nil, hydrationError("DateTime", fields)
	}
	secs, sok := fields[0].(int64)
	nans, nok := fields[1].(int64)
	offs, ook := fields[2].(int64)
	if !sok || !nok || !ook {
		return nil, hydrationError("DateTime", fields)
	}
	zone := time.FixedZone("Offset", int(offs))
	return time.Unix(secs, nans).In(zone), nil
}

func (h *hydrator) utcDateTimeZone(fields []any) (any, error) {
	if len(fields) != 3 {
		return nil, hydrationError("DateTime", fields)
	}
	secs, sok := fields[0].(int64)
	nans, nok := fields[1].(int64)
	zone, zok := fields[2].(string)
	if !sok || !nok || !zok {
		return nil, hydrationError("DateTime", fields)
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return nil, &db.ProtocolError{MessageType: "DateTime", Field: "tz_id", Err: err.Error()}
	}
	return time.Unix(secs, nans).In(location), nil
}

func hydrationError(messageType string, fields []any) error {
	return &db.ProtocolError{MessageType: messageType, Err: fmt.Sprintf("unexpected fields: %v", fields)}
}

func fieldAsMap(fields []any, i int) (map[string]any, bool) {
	if len(fields) <= i {
		return nil, false
	}
	m, ok := fields[i].(map[string]any)
	return m, ok
}

func fieldAsList(fields []any, i int) ([]any, bool) {
	if len(fields) <= i {
		return nil, false
	}
	l, ok := fields[i].([]any)
	return l, ok
}
