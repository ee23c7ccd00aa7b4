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

// Package racing provides context-aware I/O on top of plain readers and
// writers. Socket reads and writes race against the context's deadline or
// cancellation so that a stuck server cannot block a caller forever.
package racing

import (
	"context"
	"fmt"
	"io"
	"time"
)

type ioResult struct {
	n   int
	err error
}

type RacingReader interface {
	Read(ctx context.Context, bytes []byte) (int, error)
	ReadFull(ctx context.Context, bytes []byte) (int, error)
}

type RacingWriter interface {
	Write(ctx context.Context, bytes []byte) (int, error)
}

func NewRacingReader(reader io.Reader) RacingReader {
	return &racingReader{reader: reader}
}

func NewRacingWriter(writer io.Writer) RacingWriter {
	return &racingWriter{writer: writer}
}

type racingReader struct {
	reader io.Reader
}

func (rr *racingReader) Read(ctx context.Context, bytes []byte) (int, error) {
	return race(ctx, bytes, rr.read)
}

func (rr *racingReader) ReadFull(ctx context.Context, bytes []byte) (int, error) {
	return race(ctx, bytes, rr.readFull)
}

func (rr *racingReader) read(bytes []byte) (int, error) {
	return rr.reader.Read(bytes)
}

func (rr *racingReader) readFull(bytes []byte) (int, error) {
	return io.ReadFull(rr.reader, bytes)
}

type racingWriter struct {
	writer io.Writer
}

func (rw *racingWriter) Write(ctx context.Context, bytes []byte) (int, error) {
	return race(ctx, bytes, rw.writer.Write)
}

func race(ctx context.Context, bytes []byte, ioFn func([]byte) (int, error)) (int, error) {
	deadline, hasDeadline := ctx.Deadline()
	switch {
	case ctx.Err() != nil:
		return 0, wrapCtxError(ctx.Err())
	case !hasDeadline:
		return ioFn(bytes)
	case deadline.Before(time.Now()):
		return 0, wrapCtxError(context.DeadlineExceeded)
	}

	resultChan := make(chan *ioResult, 1)
	go func() {
		n, err := ioFn(bytes)
		resultChan <- &ioResult{n: n, err: err}
	}()
	select {
	case <-ctx.Done():
		return 0, wrapCtxError(ctx.Err())
	case result := <-resultChan:
		return result.n, result.err
	}
}

func wrapCtxError(err error) error {
	return fmt.Errorf("i/o interrupted: %w", err)
}
