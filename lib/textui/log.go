// Copyright (C) 2019-2022  Ambassador Labs
// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: Apache-2.0
//
// Contains code based on:
// https://github.com/datawire/dlib/blob/b09ab2e017e16d261f05fff5b3b860d645e774d4/dlog/logger_logrus.go
// https://github.com/datawire/dlib/blob/b09ab2e017e16d261f05fff5b3b860d645e774d4/dlog/logger_testing.go
// https://github.com/telepresenceio/telepresence/blob/ece94a40b00a90722af36b12e40f91cbecc0550c/pkg/log/formatter.go

package textui

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/pflag"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
)

var levelInfo = []struct {
	lvl  dlog.LogLevel
	name string
	tag  string
}{
	{dlog.LogLevelError, "error", "ERR"},
	{dlog.LogLevelWarn, "warn", "WRN"},
	{dlog.LogLevelInfo, "info", "INF"},
	{dlog.LogLevelDebug, "debug", "DBG"},
	{dlog.LogLevelTrace, "trace", "TRC"},
}

func levelTag(lvl dlog.LogLevel) string {
	for _, info := range levelInfo {
		if info.lvl == lvl {
			return info.tag
		}
	}
	return "???"
}

// LogLevelFlag is a pflag.Value naming a dlog.LogLevel.  "warning" is
// accepted as a synonym for "warn".
type LogLevelFlag struct {
	Level dlog.LogLevel
}

var _ pflag.Value = (*LogLevelFlag)(nil)

// Type implements pflag.Value.
func (lvl *LogLevelFlag) Type() string { return "loglevel" }

// Set implements pflag.Value.
func (lvl *LogLevelFlag) Set(str string) error {
	str = strings.ToLower(str)
	if str == "warning" {
		str = "warn"
	}
	for _, info := range levelInfo {
		if info.name == str {
			lvl.Level = info.lvl
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %q", str)
}

// String implements pflag.Value.
func (lvl *LogLevelFlag) String() string {
	for _, info := range levelInfo {
		if info.lvl == lvl.Level {
			return info.name
		}
	}
	panic(fmt.Errorf("invalid log level: %#v", lvl.Level))
}

type logField struct {
	key string
	val any
}

// logger is a dlog.OptimizedLogger writing one line per entry:
//
//	15:04:05.0000 LVL [prefix fields] : message : [suffix fields] (from file:line)
//
// Fields are kept sorted by fieldOrd, so WithField pays for the
// ordering once rather than every entry.
type logger struct {
	out    io.Writer
	lvl    dlog.LogLevel
	fields []logField
}

var _ dlog.OptimizedLogger = (*logger)(nil)

func NewLogger(out io.Writer, lvl dlog.LogLevel) dlog.Logger {
	return &logger{
		out: out,
		lvl: lvl,
	}
}

// Helper implements dlog.Logger.
func (l *logger) Helper() {}

// WithField implements dlog.Logger.  A key that is already set is
// replaced.
func (l *logger) WithField(key string, value any) dlog.Logger {
	fields := make([]logField, 0, len(l.fields)+1)
	for _, f := range l.fields {
		if f.key != key {
			fields = append(fields, f)
		}
	}
	fields = append(fields, logField{key: key, val: value})
	sort.SliceStable(fields, func(i, j int) bool {
		iOrd, jOrd := fieldOrd(fields[i].key), fieldOrd(fields[j].key)
		if iOrd != jOrd {
			return iOrd < jOrd
		}
		return fields[i].key < fields[j].key
	})
	return &logger{
		out:    l.out,
		lvl:    l.lvl,
		fields: fields,
	}
}

type logWriter struct {
	log *logger
	lvl dlog.LogLevel
}

// Write implements io.Writer.
func (lw logWriter) Write(data []byte) (int, error) {
	lw.log.log(lw.lvl, func(w io.Writer) {
		_, _ = w.Write(bytes.TrimSuffix(data, []byte("\n")))
	})
	return len(data), nil
}

// StdLogger implements dlog.Logger.
func (l *logger) StdLogger(lvl dlog.LogLevel) *log.Logger {
	return log.New(logWriter{log: l, lvl: lvl}, "", 0)
}

// Log implements dlog.Logger.
func (l *logger) Log(lvl dlog.LogLevel, msg string) {
	panic("should not happen: optimized log methods should be used instead")
}

// UnformattedLog implements dlog.OptimizedLogger.
func (l *logger) UnformattedLog(lvl dlog.LogLevel, args ...any) {
	l.log(lvl, func(w io.Writer) {
		_, _ = printer.Fprint(w, args...)
	})
}

// UnformattedLogln implements dlog.OptimizedLogger.
func (l *logger) UnformattedLogln(lvl dlog.LogLevel, args ...any) {
	l.log(lvl, func(w io.Writer) {
		_, _ = printer.Fprintln(w, args...)
	})
}

// UnformattedLogf implements dlog.OptimizedLogger.
func (l *logger) UnformattedLogf(lvl dlog.LogLevel, format string, args ...any) {
	l.log(lvl, func(w io.Writer) {
		_, _ = printer.Fprintf(w, format, args...)
	})
}

var (
	logBufPool = containers.SyncPool[*bytes.Buffer]{
		New:   func() *bytes.Buffer { return new(bytes.Buffer) },
		Reset: func(buf *bytes.Buffer) { buf.Reset() },
	}
	// logMu keeps lines from different goroutines from
	// interleaving on a shared writer.
	logMu sync.Mutex
)

const (
	thisModule  = "git.lukeshu.com/xfs-progs-ng"
	thisPackage = thisModule + "/lib/textui"
)

// thisModDir is the source directory of the module, trimmed from
// caller file names.
var thisModDir = func() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}()

func (l *logger) log(lvl dlog.LogLevel, writeMsg func(io.Writer)) {
	if lvl > l.lvl {
		return
	}
	buf := logBufPool.Get()
	defer logBufPool.Put(buf)

	buf.Write(time.Now().AppendFormat(buf.AvailableBuffer(), "15:04:05.0000"))
	buf.WriteByte(' ')
	buf.WriteString(levelTag(lvl))

	split := sort.Search(len(l.fields), func(i int) bool {
		return fieldOrd(l.fields[i].key) >= 0
	})
	for _, f := range l.fields[:split] {
		writeField(buf, f.key, f.val)
	}

	buf.WriteString(" : ")
	writeMsg(buf)
	file, line, haveCaller := logCaller()
	if haveCaller || split < len(l.fields) {
		buf.WriteString(" :")
	}
	for _, f := range l.fields[split:] {
		writeField(buf, f.key, f.val)
	}
	if haveCaller {
		fmt.Fprintf(buf, " (from %s:%d)", file, line)
	}
	buf.WriteByte('\n')

	logMu.Lock()
	_, _ = l.out.Write(buf.Bytes())
	logMu.Unlock()
}

// logCaller finds the first frame that belongs to this module but is
// outside of this package and dlib.
func logCaller() (file string, line int, ok bool) {
	var pcs [25]uintptr
	depth := runtime.Callers(3, pcs[:]) // skip runtime.Callers, logCaller, and .log
	frames := runtime.CallersFrames(pcs[:depth])
	for f, more := frames.Next(); ; f, more = frames.Next() {
		if strings.HasPrefix(f.Function, thisModule+"/") &&
			!strings.HasPrefix(f.Function, thisPackage+".") {
			return strings.TrimPrefix(f.File, thisModDir+"/"), f.Line, true
		}
		if !more {
			return "", 0, false
		}
	}
}

// fieldOrd places log fields: negative values go before the message
// (lowest first), others after it.
func fieldOrd(key string) int {
	switch key {
	case "THREAD": // dgroup
		return -99
	case "xfsrepair.phase":
		return -20
	case "xfsrepair.ag":
		return -19
	case "xfstrans.step":
		return -2
	case "xfstrans.seq", "xfs.read-json-file", "xfs.dev":
		return -1
	case "xfsrepair.ino":
		return 0
	default:
		return 1
	}
}

// fieldPrefixes are stripped from field names on output.
var fieldPrefixes = []string{"xfsrepair.", "xfstrans.", "xfs."}

func writeField(w io.Writer, key string, val any) {
	valBuf := logBufPool.Get()
	defer logBufPool.Put(valBuf)
	_, _ = printer.Fprint(valBuf, val)
	valStr := valBuf.String()
	if needsQuote(valStr) {
		valStr = strconv.Quote(valStr)
	}

	switch {
	case key == "THREAD":
		switch {
		case valStr == "" || valStr == "/main":
			return
		case strings.HasPrefix(valStr, "/main/"):
			valStr = valStr[len("/main/"):]
		default:
			valStr = strings.TrimPrefix(valStr, "/")
		}
		key = "thread"
	case key == "xfsrepair.phase":
		fmt.Fprintf(w, " phase%s", valStr)
		return
	case strings.HasSuffix(key, ".step"):
		fmt.Fprintf(w, "/%s", valStr)
		return
	}
	for _, prefix := range fieldPrefixes {
		if strings.HasPrefix(key, prefix) {
			key = key[len(prefix):]
			break
		}
	}
	fmt.Fprintf(w, " %s=%s", key, valStr)
}

func needsQuote(str string) bool {
	if strings.HasPrefix(str, `"`) {
		return true
	}
	for _, r := range str {
		if !unicode.IsPrint(r) || r == ' ' {
			return true
		}
	}
	return false
}
