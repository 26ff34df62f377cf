// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

// ResyncResult describes one resynchronization attempt.
type ResyncResult struct {
	Matched  bool // sentinel found before the link went quiet
	Consumed int  // bytes read while scanning, sentinel included
}

// Resync realigns the byte stream with the sender.
//
// It reads one byte at a time until the last four bytes equal SyncSentinel or
// a read times out. Either way it then writes ResyncAck and flushes both
// directions, so the sender restarts from a clean buffer.
func Resync(t *Transport) (ResyncResult, error) {
	var (
		window [len(SyncSentinel)]byte
		result ResyncResult
	)

	for {
		b, ok, err := t.ReadOne()
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}
		result.Consumed++

		copy(window[:], window[1:])
		window[len(window)-1] = b
		if result.Consumed >= len(window) && string(window[:]) == SyncSentinel {
			result.Matched = true
			break
		}
	}

	if err := t.WriteByte(ResyncAck); err != nil {
		return result, err
	}
	if err := t.FlushInput(); err != nil {
		return result, err
	}
	if err := t.FlushOutput(); err != nil {
		return result, err
	}
	return result, nil
}
