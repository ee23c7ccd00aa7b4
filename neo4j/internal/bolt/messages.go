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
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/packstream"
)

// Message struct tags for Bolt 5.x.
const (
	msgHello    packstream.StructTag = 0x01
	msgGoodbye  packstream.StructTag = 0x02
	msgReset    packstream.StructTag = 0x0f
	msgRun      packstream.StructTag = 0x10
	msgBegin    packstream.StructTag = 0x11
	msgCommit   packstream.StructTag = 0x12
	msgRollback packstream.StructTag = 0x13
	msgDiscard  packstream.StructTag = 0x2f
	msgPull     packstream.StructTag = 0x3f
	msgRoute    packstream.StructTag = 0x66
	msgLogon    packstream.StructTag = 0x6a
	msgLogoff   packstream.StructTag = 0x6b
	msgSuccess  packstream.StructTag = 0x70
	msgRecord   packstream.StructTag = 0x71
	msgIgnored  packstream.StructTag = 0x7e
	msgFailure  packstream.StructTag = 0x7f
)
