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

package log

// Logger is used throughout the driver for logging purposes.
// Driver clients can implement this interface and provide an implementation
// upon driver creation.
//
// All logging functions take a name and an id that correspond to the name of
// the logging component and its identity, for example "router" and "1" to
// indicate who is logging and what instance.
//
// Database connections take the form of "bolt5" and "bolt-123@192.168.0.1:7687"
// where "bolt5" is the name of the protocol handler in use, "bolt-123" is the
// database's identity of the connection on server "192.168.0.1:7687".
type Logger interface {
	Error(name string, id string, err error)
	Errorf(name string, id string, msg string, args ...any)
	Warnf(name string, id string, msg string, args ...any)
	Infof(name string, id string, msg string, args ...any)
	Debugf(name string, id string, msg string, args ...any)
}

// List of component names used as the name parameter in the Logger interface.
const (
	Driver  = "driver"
	Session = "session"
	Pool    = "pool"
	Router  = "router"
	Bolt5   = "bolt5"
)

type void struct{}

func (v void) Error(string, string, error)         {}
func (v void) Errorf(string, string, string, ...any) {}
func (v void) Warnf(string, string, string, ...any)  {}
func (v void) Infof(string, string, string, ...any)  {}
func (v void) Debugf(string, string, string, ...any) {}

// Void returns a logger that discards everything.
func Void() Logger {
	return void{}
}
