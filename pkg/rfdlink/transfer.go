// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rfdlink

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionState is the transfer state machine position.
type SessionState int

const (
	StateAwaitingChunk SessionState = iota
	StateVerifying
	StateDone
	StateAborted
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingChunk:
		return "AWAITING_CHUNK"
	case StateVerifying:
		return "VERIFYING"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ChunkOutcome is the result of one transfer iteration.
type ChunkOutcome int

const (
	// OutcomeAccepted: checksum matched, payload appended, 'Y' sent.
	OutcomeAccepted ChunkOutcome = iota
	// OutcomeRejected: checksum mismatch within the retry budget; 'N' sent
	// and the stream resynchronized.
	OutcomeRejected
	// OutcomeTimeout: a field came back empty for the first time this
	// session; tolerated with 'Y' and a resync.
	OutcomeTimeout
	// OutcomeStreamEnded: a field came back empty again; normal end.
	OutcomeStreamEnded
	// OutcomeExhausted: checksum mismatch with the retry budget spent; the
	// payload is appended anyway and the session ends truncated.
	OutcomeExhausted
)

func (o ChunkOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeTimeout:
		return "TIMEOUT"
	case OutcomeStreamEnded:
		return "STREAM_ENDED"
	case OutcomeExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Chunk is one checksum-verified unit of a bulk transfer.
type Chunk struct {
	Checksum string
	Location []byte
	Payload  []byte
}

// Verify reports whether the checksum covers the location block and payload.
func (c Chunk) Verify() bool {
	return c.Checksum == ChunkDigest(c.Location, c.Payload)
}

// TransferResult is the outcome of a completed, truncated or aborted session.
type TransferResult struct {
	SessionID    string
	Data         []byte // accumulated payload bytes (base64 text for images)
	Truncated    bool   // retry budget exhausted; Data is partial
	Aborted      bool   // cancelled or failed on a link error
	Chunks       int    // accepted chunks
	Rejected     int    // rejected chunks, including the final one on truncation
	Resyncs      int
	LastLocation []byte
	Duration     time.Duration
}

// Session runs one chunked transfer. It is created per transfer command and
// must not be reused.
type Session struct {
	id     string
	link   *Transport
	cfg    TransferConfig
	sink   TelemetrySink
	stats  *Statistics
	logger *zap.Logger

	state       SessionState
	buf         bytes.Buffer
	retries     int
	steps       int
	softEmptyAt int // step of the last tolerated empty field, 0 if none
	result      TransferResult
}

// NewSession creates a transfer session over link.
func NewSession(link *Transport, opts ...Option) *Session {
	o := buildOptions(opts)
	return newSession(link, o)
}

func newSession(link *Transport, o options) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		link:   link,
		cfg:    o.transfer,
		sink:   o.sink,
		stats:  o.stats,
		logger: o.logger.With(zap.String("session_id", id)),
		state:  StateAwaitingChunk,
	}
}

// ID returns the session identifier used in log records.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state machine position.
func (s *Session) State() SessionState {
	return s.state
}

// Run receives chunks until the stream ends, the retry budget runs out, the
// link fails, or ctx is cancelled. Cancellation is only observed between
// chunks. The result is always non-nil and carries whatever was accumulated.
func (s *Session) Run(ctx context.Context) (*TransferResult, error) {
	start := s.link.Now()
	s.logger.Info("Start image receiving",
		zap.Int("word_length", s.cfg.WordLength),
		zap.Int("max_retries", s.cfg.MaxRetries),
	)
	s.stats.update(func(c *Counters) { c.Transfers++ })

	for {
		if err := ctx.Err(); err != nil {
			return s.abort(start, err)
		}

		outcome, err := s.step()
		if err != nil {
			return s.abort(start, err)
		}

		switch outcome {
		case OutcomeAccepted, OutcomeRejected, OutcomeTimeout:
			continue
		case OutcomeStreamEnded:
			s.state = StateDone
		case OutcomeExhausted:
			s.state = StateDone
			s.result.Truncated = true
			s.stats.update(func(c *Counters) { c.Truncations++ })
		}
		return s.finish(start), nil
	}
}

// step performs one AWAITING_CHUNK → VERIFYING pass.
func (s *Session) step() (ChunkOutcome, error) {
	s.state = StateAwaitingChunk
	s.steps++

	checksum, err := s.link.Read(s.cfg.ChecksumLength)
	if err != nil {
		return 0, err
	}
	location, err := s.link.Read(s.cfg.LocationLength)
	if err != nil {
		return 0, err
	}
	s.forward(location)
	payload, err := s.link.Read(s.cfg.WordLength)
	if err != nil {
		return 0, err
	}

	s.state = StateVerifying
	chunk := Chunk{Checksum: string(checksum), Location: location, Payload: payload}

	var outcome ChunkOutcome
	if chunk.Verify() {
		if outcome, err = s.accept(chunk); err != nil {
			return 0, err
		}
	} else {
		if outcome, err = s.reject(chunk); err != nil || outcome == OutcomeExhausted {
			return outcome, err
		}
	}

	// An empty field is tolerated; another in the same or the next pass
	// ends the transfer.
	for _, field := range []struct {
		name  string
		empty bool
	}{
		{"payload", len(payload) == 0},
		{"checksum", len(checksum) == 0},
	} {
		if !field.empty {
			continue
		}
		if s.softEmptyAt > 0 && s.steps-s.softEmptyAt <= 1 {
			s.logger.Info("Field empty again, ending image receiving", zap.String("field", field.name))
			return OutcomeStreamEnded, nil
		}
		s.logger.Warn("Field was empty, retrying", zap.String("field", field.name))
		s.softEmptyAt = s.steps
		s.stats.update(func(c *Counters) { c.SoftEmpty++ })
		if err := s.link.WriteByte(ChunkAck); err != nil {
			return 0, err
		}
		if err := s.resync(); err != nil {
			return 0, err
		}
		outcome = OutcomeTimeout
	}

	return outcome, nil
}

func (s *Session) accept(chunk Chunk) (ChunkOutcome, error) {
	s.retries = 0
	if err := s.link.WriteByte(ChunkAck); err != nil {
		return 0, err
	}
	s.buf.Write(chunk.Payload)
	s.result.Chunks++
	s.stats.update(func(c *Counters) {
		c.ChunksAccepted++
		c.PayloadBytes += uint64(len(chunk.Payload))
	})
	s.logger.Debug("Chunk accepted",
		zap.Int("position", s.buf.Len()),
		zap.ByteString("location", chunk.Location),
	)
	return OutcomeAccepted, nil
}

func (s *Session) reject(chunk Chunk) (ChunkOutcome, error) {
	s.result.Rejected++
	s.stats.update(func(c *Counters) { c.ChunksRejected++ })

	if err := s.link.WriteByte(ChunkNack); err != nil {
		return 0, err
	}

	if s.retries >= s.cfg.MaxRetries {
		// A partial image beats no image.
		s.buf.Write(chunk.Payload)
		s.logger.Error("Ran out of retry attempts, truncating image",
			zap.Int("position", s.buf.Len()),
			zap.Int("retries", s.retries),
		)
		return OutcomeExhausted, nil
	}

	s.retries++
	s.logger.Warn("Packet failure, resend last",
		zap.Int("retry", s.retries),
		zap.Int("position", s.buf.Len()),
	)
	if err := s.resync(); err != nil {
		return 0, err
	}
	return OutcomeRejected, nil
}

func (s *Session) resync() error {
	res, err := Resync(s.link)
	s.result.Resyncs++
	s.stats.update(func(c *Counters) {
		c.Resyncs++
		if !res.Matched {
			c.ResyncMisses++
		}
	})
	if err != nil {
		return err
	}
	s.logger.Debug("Resynchronized",
		zap.Bool("matched", res.Matched),
		zap.Int("consumed", res.Consumed),
	)
	return nil
}

func (s *Session) forward(location []byte) {
	if len(location) == 0 {
		return
	}
	s.result.LastLocation = location
	s.stats.update(func(c *Counters) { c.Locations++ })
	s.sink.Forward(Location{Block: location, Source: SourceTransfer, Received: s.link.Now()})
}

func (s *Session) abort(start time.Time, err error) (*TransferResult, error) {
	s.state = StateAborted
	s.result.Aborted = true
	s.stats.update(func(c *Counters) { c.Aborts++ })
	s.logger.Error("Image receiving aborted", zap.Int("position", s.buf.Len()), zap.Error(err))
	return s.finish(start), err
}

func (s *Session) finish(start time.Time) *TransferResult {
	s.result.SessionID = s.id
	s.result.Data = s.buf.Bytes()
	s.result.Duration = s.link.Now().Sub(start)
	s.logger.Info("End image receiving",
		zap.String("state", s.state.String()),
		zap.Int("bytes", len(s.result.Data)),
		zap.Int("chunks", s.result.Chunks),
		zap.Int("rejected", s.result.Rejected),
		zap.Bool("truncated", s.result.Truncated),
		zap.Duration("duration", s.result.Duration),
	)
	result := s.result
	return &result
}
