// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 200
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 200
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomPayload(rng *rand.Rand, maxLen int) []byte {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	p := make([]byte, 1+rng.Intn(maxLen-1))
	for i := range p {
		p[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return p
}

// ============================================================
// Transfer Fuzz Tests
// ============================================================

// Within the retry budget, corruption never leaks into the image and never
// truncates it.
func TestFuzz_TransferWithinRetryBudget(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	cfg := testTransferConfig()

	for round := 0; round < rounds; round++ {
		var (
			parts [][][]byte
			want  bytes.Buffer
		)
		chunks := 1 + rng.Intn(8)
		for i := 0; i < chunks; i++ {
			payload := randomPayload(rng, cfg.WordLength)
			for bad := rng.Intn(cfg.MaxRetries + 1); bad > 0; bad-- {
				parts = append(parts, badChunk(cfg, fmt.Sprintf("loc%d", i), randomPayload(rng, cfg.WordLength)))
			}
			parts = append(parts, goodChunk(cfg, fmt.Sprintf("loc%d", i), payload))
			want.Write(payload)
		}

		link, _, _ := newTestTransport(t, script(parts...)...)
		result, err := NewSession(link, WithTransferConfig(cfg)).Run(context.Background())
		if err != nil {
			t.Fatalf("round %d: Run failed: %v", round, err)
		}
		if result.Truncated {
			t.Fatalf("round %d: unexpected truncation", round)
		}
		if !bytes.Equal(result.Data, want.Bytes()) {
			t.Fatalf("round %d: buffer mismatch\nwant %q\ngot  %q", round, want.Bytes(), result.Data)
		}
		if result.Chunks != chunks {
			t.Fatalf("round %d: expected %d chunks, got %d", round, chunks, result.Chunks)
		}
	}
}

// Resync consumes exactly through the first sentinel regardless of the noise
// before it.
func TestFuzz_ResyncStopsAtSentinel(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		noise := make([]byte, rng.Intn(64))
		for i := range noise {
			// Bytes outside the sentinel alphabet so it cannot appear early.
			noise[i] = byte('A' + rng.Intn(26))
		}
		stream := append(append([]byte{}, noise...), SyncSentinel...)

		link, _, _ := newTestTransport(t, stream, []byte("tail"))
		res, err := Resync(link)
		if err != nil {
			t.Fatalf("round %d: Resync failed: %v", round, err)
		}
		if !res.Matched || res.Consumed != len(stream) {
			t.Fatalf("round %d: expected match after %d bytes, got %+v", round, len(stream), res)
		}
	}
}
