// Package cos provides common low-level types and utilities shared across
// the relay's packages.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"os"
	"sync"
	ratomic "sync/atomic"

	"github.com/xsite-relay/xsite/cmn/debug"
	"github.com/xsite-relay/xsite/cmn/nlog"
)

// Errs accumulates up to a small fixed number of distinct errors,
// deduplicated by message, for callers (e.g. multicast fan-out) that try
// several alternatives and want to report all failures at once.
type Errs struct {
	errs []error
	cnt  int64
	mu   sync.Mutex
}

// Errs

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() (s string) {
	cnt := e.Cnt()
	if cnt == 0 {
		return
	}
	e.mu.Lock()
	var err error
	if cnt = len(e.errs); cnt > 0 {
		err = e.errs[0]
	}
	e.mu.Unlock()
	if err == nil {
		return
	}
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	s = err.Error()
	return
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

//
// Abnormal termination (configuration/startup failures, spec.md §7.1)
//

const fatalPrefix = "FATAL ERROR: "

// ExitLog logs a fatal error and terminates the process. Reserved for
// configuration errors detected at init (spec.md §7: "fail initialization").
func ExitLog(a ...any) {
	msg := fatalPrefix + fmt.Sprint(a...)
	nlog.ErrorDepth(1, msg)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func ExitLogf(f string, a ...any) {
	ExitLog(fmt.Sprintf(f, a...))
}
