// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/sha3"

	"github.com/adamchainz/conjecture/services/conjecture/trace"
)

// execCache remembers the frozen result of recently executed inputs, keyed
// by the SHA3-256 of the input bytes. A nil *execCache is a disabled cache.
type execCache struct {
	entries *lru.Cache[[32]byte, *trace.Result]
}

func newExecCache(size int) (*execCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[[32]byte, *trace.Result](size)
	if err != nil {
		return nil, fmt.Errorf("create execution cache: %w", err)
	}
	return &execCache{entries: entries}, nil
}

func cacheKey(buf []byte) [32]byte {
	return sha3.Sum256(buf)
}

func (c *execCache) get(key [32]byte) (*trace.Result, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *execCache) add(key [32]byte, res *trace.Result) {
	if c == nil {
		return
	}
	c.entries.Add(key, res)
}

func (c *execCache) purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
