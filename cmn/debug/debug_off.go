//go:build !debug

// Package debug provides invariant checks that compile out of production
// builds and only activate under the "debug" build tag.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import "sync"

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}

func AssertMutexLocked(_ *sync.Mutex) {}
