/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ebr

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

type logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	internalLogger = &logger{"", os.Stdout, 3}
	level          atomic.Int32

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

func init() {
	level.Store(levelWarn)
	if os.Getenv("EBR_LOG_LEVEL") != "" {
		if n, err := strconv.Atoi(os.Getenv("EBR_LOG_LEVEL")); err == nil {
			if n >= levelTrace && n <= levelNoPrint {
				level.Store(int32(n))
			}
		}
	}
}

// SetLogLevel changes the internal logger's level. The default level is Warn;
// the process env `EBR_LOG_LEVEL` sets it at start-up (0 trace .. 5 silent).
func SetLogLevel(l int) {
	if l >= levelTrace && l <= levelNoPrint {
		level.Store(int32(l))
	}
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stdout
	}
	return &logger{
		name:      name,
		out:       out,
		callDepth: 3,
	}
}

func enabled(l int) bool {
	return int(level.Load()) <= l
}

func (l *logger) errorf(format string, a ...interface{}) {
	l.output(levelError, 0, format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	l.output(levelWarn, 0, format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	l.output(levelInfo, 0, format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	l.output(levelDebug, 0, format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	l.output(levelTrace, 0, format, a...)
}

// output writes one line. skip is the number of extra frames between the
// reported call site and the level helper that called output.
func (l *logger) output(lv, skip int, format string, a ...interface{}) {
	if !enabled(lv) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(lv, skip)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger %s failed: %v\n", levelName[lv], err)
	}
}

func (l *logger) prefix(level, skip int) string {
	var buffer [64]byte
	buf := bytes.NewBuffer(buffer[:0])
	_, _ = buf.WriteString(colors[level])
	_, _ = buf.WriteString(levelName[level])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location(skip))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
	return buf.String()
}

func (l *logger) location(skip int) string {
	_, file, line, ok := runtime.Caller(l.callDepth + 1 + skip)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}
