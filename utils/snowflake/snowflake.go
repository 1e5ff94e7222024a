// Package snowflake issues time-ordered 63-bit IDs for posts, comments and
// direct messages, so list endpoints can page by ID as well as by time.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is 2025-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1735689600000

	WorkerBits   = 10
	SequenceBits = 12

	MaxWorker   = 1<<WorkerBits - 1
	maxSequence = 1<<SequenceBits - 1

	workerShift = SequenceBits
	timeShift   = SequenceBits + WorkerBits
)

var (
	ErrInvalidWorkerID     = errors.New("snowflake: worker id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
	ErrInvalidID           = errors.New("snowflake: invalid id")
)

// ID is a generated identifier. Its string form is what the row store keeps.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Time is the millisecond the ID was issued in.
func (id ID) Time() time.Time {
	return time.UnixMilli(int64(id)>>timeShift + Epoch).UTC()
}

func (id ID) Worker() int64 {
	return int64(id) >> workerShift & MaxWorker
}

func (id ID) Sequence() int64 {
	return int64(id) & maxSequence
}

// ParseString reverses ID.String.
func ParseString(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidID
	}
	return ID(v), nil
}

// Generator is safe for concurrent use. One generator per process; distinct
// processes must use distinct worker ids.
type Generator struct {
	mu       sync.Mutex
	worker   int64
	lastMs   int64
	sequence int64
	nowMs    func() int64
}

func NewGenerator(worker int64) (*Generator, error) {
	if worker < 0 || worker > MaxWorker {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{
		worker: worker,
		lastMs: -1,
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID returns the next ID. It spins into the next millisecond when the
// sequence for the current one is exhausted.
func (g *Generator) NextID() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.nowMs()
	if ms < g.lastMs {
		return 0, ErrClockMovedBackwards
	}
	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for ms <= g.lastMs {
				ms = g.nowMs()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return ID((ms-Epoch)<<timeShift | g.worker<<workerShift | g.sequence), nil
}

// NextString is NextID formatted for a string primary key.
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
