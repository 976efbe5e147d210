// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements secure transcript accumulation for streaming speech
// recognition. Interview transcripts carry personal data (résumé details,
// employer names), so fragments are held in mlocked memory to prevent
// swapping to disk and are incrementally hashed for integrity.

package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	// TranscriptBufferSize is the mlocked buffer size for one streaming
	// session. 256 KB covers over an hour of spoken transcript.
	TranscriptBufferSize = 256 * 1024

	// minMlockLimitKB is the minimum mlock limit required in kilobytes.
	minMlockLimitKB = 256
)

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// TranscriptAccumulator collects final transcript fragments from a streaming
// session. Implementations must be safe for concurrent use; the accumulator
// cannot be reused after Finalize or Destroy.
type TranscriptAccumulator interface {
	// Write appends a transcript fragment.
	Write(fragment string) error

	// Finalize returns the full transcript and its SHA-256 hex hash, then
	// wipes the buffer. Can only be called once.
	Finalize() (transcript string, hash string, err error)

	// Destroy wipes the buffer without returning data. Idempotent.
	Destroy()

	// ID returns the accumulator's correlation id.
	ID() string

	// CreatedAt returns when the accumulator was created.
	CreatedAt() time.Time
}

// NewTranscriptAccumulator allocates an mlocked accumulator. When mlock
// limits are insufficient, it falls back to plain memory only if
// ALEUTIAN_INSECURE_MEMORY=true; otherwise it fails.
func NewTranscriptAccumulator() (TranscriptAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		if os.Getenv("ALEUTIAN_INSECURE_MEMORY") == "true" {
			slog.Warn("Using insecure transcript accumulator due to mlock limits",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB)
			return newPlainAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise the limit or set ALEUTIAN_INSECURE_MEMORY=true",
			currentMlockLimitKB, minMlockLimitKB)
	}

	buf := memguard.NewBuffer(TranscriptBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", TranscriptBufferSize)
	}
	buf.Melt()

	acc := &secureAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		buffer:    buf,
		hasher:    sha256.New(),
	}
	slog.Debug("Created secure transcript accumulator",
		"accumulator_id", acc.id, "buffer_size", TranscriptBufferSize)
	return acc, nil
}

func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure transcript memory initialized",
				"mlock_limit_kb", currentMlockLimitKB, "required_kb", minMlockLimitKB)
		} else {
			slog.Error("mlock limit insufficient for secure transcript memory",
				"current_limit_kb", currentMlockLimitKB, "required_kb", minMlockLimitKB)
		}
	})
}

func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

// PurgeSecureMemory wipes all memguard allocations. Called at shutdown.
func PurgeSecureMemory() {
	memguard.Purge()
	slog.Info("Purged secure transcript memory")
}

// =============================================================================
// Secure implementation
// =============================================================================

type secureAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func (a *secureAccumulator) Write(fragment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow: transcript too large")
	}
	b := []byte(fragment)
	if a.offset+len(b) > TranscriptBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(b), TranscriptBufferSize-a.offset)
	}
	copy(a.buffer.Bytes()[a.offset:], b)
	a.offset += len(b)
	a.hasher.Write(b)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	transcript := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()

	slog.Debug("Finalized transcript accumulator",
		"accumulator_id", a.id, "transcript_length", len(transcript))
	return transcript, hashStr, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.wipe()
	slog.Debug("Destroyed transcript accumulator", "accumulator_id", a.id)
}

func (a *secureAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

func (a *secureAccumulator) ID() string           { return a.id }
func (a *secureAccumulator) CreatedAt() time.Time { return a.createdAt }

// =============================================================================
// Plain-memory fallback
// =============================================================================

type plainAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func newPlainAccumulator() TranscriptAccumulator {
	acc := &plainAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		data:      make([]byte, 0, TranscriptBufferSize),
		hasher:    sha256.New(),
	}
	slog.Warn("Created INSECURE transcript accumulator - data may be swapped to disk",
		"accumulator_id", acc.id)
	return acc
}

func (a *plainAccumulator) Write(fragment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow: transcript too large")
	}
	b := []byte(fragment)
	if len(a.data)+len(b) > TranscriptBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(b), TranscriptBufferSize-len(a.data))
	}
	a.data = append(a.data, b...)
	a.hasher.Write(b)
	return nil
}

func (a *plainAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	transcript := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return transcript, hashStr, nil
}

func (a *plainAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *plainAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

func (a *plainAccumulator) ID() string           { return a.id }
func (a *plainAccumulator) CreatedAt() time.Time { return a.createdAt }
