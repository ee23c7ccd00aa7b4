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

import (
	"fmt"
	"os"
	"time"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Log levels for the console logger.
const (
	ERROR = iota
	WARNING
	INFO
	DEBUG
)

// Console is a simple logger that writes to stdout/stderr.
//
//	2020-05-03 12:39:45.001  ERROR  [router 1] Failed to read routing table
//	2020-05-03 12:39:45.001   INFO  [bolt5 bolt-62@localhost:7687] Connected
type Console struct {
	Level int
}

func (l *Console) Error(name, id string, err error) {
	if l.Level < ERROR {
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s  ERROR  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, err.Error())
}

func (l *Console) Errorf(name, id string, msg string, args ...any) {
	if l.Level < ERROR {
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s  ERROR  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Warnf(name, id string, msg string, args ...any) {
	if l.Level < WARNING {
		return
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s   WARN  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Infof(name, id string, msg string, args ...any) {
	if l.Level < INFO {
		return
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s   INFO  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}

func (l *Console) Debugf(name, id string, msg string, args ...any) {
	if l.Level < DEBUG {
		return
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s  DEBUG  [%s %s] %s\n", time.Now().Format(timeFormat), name, id, fmt.Sprintf(msg, args...))
}
