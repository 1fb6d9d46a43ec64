// Package nlog is the relay's leveled logger: dependency-free, safe for
// concurrent use, and independent of the standard "log" package so that
// every component in this module goes through one place for diagnostics.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	errOut io.Writer = os.Stderr
	title  string
)

// SetOutput redirects info/warning lines; SetErrOutput redirects error
// lines. Tests typically point both at a bytes.Buffer.
func SetOutput(w io.Writer)    { mu.Lock(); out = w; mu.Unlock() }
func SetErrOutput(w io.Writer) { mu.Lock(); errOut = w; mu.Unlock() }
func SetTitle(s string)        { mu.Lock(); title = s; mu.Unlock() }

func InfoDepth(depth int, args ...any)    { logf(sevInfo, depth+1, "", args...) }
func Infoln(args ...any)                  { logf(sevInfo, 1, "", args...) }
func Infof(format string, args ...any)    { logf(sevInfo, 1, format, args...) }
func Warningln(args ...any)               { logf(sevWarn, 1, "", args...) }
func Warningf(format string, args ...any) { logf(sevWarn, 1, format, args...) }
func ErrorDepth(depth int, args ...any)   { logf(sevErr, depth+1, "", args...) }
func Errorln(args ...any)                 { logf(sevErr, 1, "", args...) }
func Errorf(format string, args ...any)   { logf(sevErr, 1, format, args...) }

func logf(sev severity, depth int, format string, args ...any) {
	var line strings.Builder
	line.WriteByte(sevChar[sev])
	line.WriteByte(' ')
	line.WriteString(time.Now().Format("15:04:05.000000"))
	line.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		if idx := strings.LastIndexByte(fn, '/'); idx >= 0 {
			fn = fn[idx+1:]
		}
		line.WriteString(fn)
		line.WriteByte(':')
		line.WriteString(strconv.Itoa(ln))
		line.WriteByte(' ')
	}
	if title != "" {
		line.WriteByte('[')
		line.WriteString(title)
		line.WriteString("] ")
	}
	if format == "" {
		fmt.Fprintln(&line, args...)
	} else {
		fmt.Fprintf(&line, format, args...)
		if !strings.HasSuffix(line.String(), "\n") {
			line.WriteByte('\n')
		}
	}

	mu.Lock()
	defer mu.Unlock()
	w := out
	if sev >= sevWarn {
		w = errOut
	}
	io.WriteString(w, line.String())
}
