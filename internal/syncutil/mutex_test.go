// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutexSerializes(t *testing.T) {
	var mu Mutex
	var wg sync.WaitGroup
	n := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			n++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, n)
}
