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

// Package dbtype contains types that represent database values.
package dbtype

// Node represents a node in the graph.
type Node struct {
	// ElementId is the unique identifier of the node within the database.
	ElementId string
	// Deprecated: Id is the legacy numeric identity, superseded by ElementId.
	Id     int64
	Labels []string
	Props  map[string]any
}

func (n Node) GetProperties() map[string]any {
	return n.Props
}

// Relationship represents a directed relationship between two nodes.
type Relationship struct {
	ElementId string
	// Deprecated: Id is the legacy numeric identity, superseded by ElementId.
	Id             int64
	StartElementId string
	// Deprecated: StartId is the legacy numeric identity of the start node.
	StartId      int64
	EndElementId string
	// Deprecated: EndId is the legacy numeric identity of the end node.
	EndId int64
	Type  string
	Props map[string]any
}

func (r Relationship) GetProperties() map[string]any {
	return r.Props
}

// Path represents a directed sequence of relationships between two nodes.
// The first node of the first relationship is the start of the path, traversal
// order follows the slice order.
type Path struct {
	Nodes         []Node
	Relationships []Relationship
}

// Entity is implemented by Node and Relationship.
type Entity interface {
	GetProperties() map[string]any
}
