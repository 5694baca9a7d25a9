package colstore

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const (
	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	maxWorkerID     = -1 ^ (-1 << workerIDBits)
	maxDatacenterID = -1 ^ (-1 << datacenterIDBits)
	sequenceMask    = -1 ^ (-1 << sequenceBits)

	workerIDShift     = sequenceBits
	datacenterIDShift = sequenceBits + workerIDBits
	timestampShift    = sequenceBits + workerIDBits + datacenterIDBits

	DefaultMaxBackwardDrift = 5 * time.Millisecond
)

// DefaultSnowflakeEpoch is the Twitter snowflake epoch, 2010-11-04T01:42:54.657Z.
var DefaultSnowflakeEpoch = time.UnixMilli(1288834974657)

// Snowflake generates 64 bit ids made of a millisecond timestamp, a
// datacenter id, a worker id and a per millisecond sequence. Ids produced by
// one Snowflake are strictly increasing.
type Snowflake struct {
	datacenterID int64
	workerID     int64
	epochMs      int64
	maxDrift     int64
	now          func() time.Time

	// state packs the last used millisecond (relative to epoch) and the
	// sequence issued in it: ms<<sequenceBits | seq.
	state atomic.Int64
}

type SnowflakeOption func(s *Snowflake)

func WithEpoch(epoch time.Time) SnowflakeOption {
	return func(s *Snowflake) {
		s.epochMs = epoch.UnixMilli()
	}
}

// WithMaxBackwardDrift sets how far the wall clock may move backwards before
// NextID fails. Smaller regressions are absorbed by staying on the last
// issued millisecond.
func WithMaxBackwardDrift(d time.Duration) SnowflakeOption {
	return func(s *Snowflake) {
		s.maxDrift = d.Milliseconds()
	}
}

func withClock(now func() time.Time) SnowflakeOption {
	return func(s *Snowflake) {
		s.now = now
	}
}

func NewSnowflake(datacenterID, workerID int64, options ...SnowflakeOption) (*Snowflake, error) {
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, errors.Errorf("datacenter id must be between 0 and %d, got %d", maxDatacenterID, datacenterID)
	}

	if workerID < 0 || workerID > maxWorkerID {
		return nil, errors.Errorf("worker id must be between 0 and %d, got %d", maxWorkerID, workerID)
	}

	s := &Snowflake{
		datacenterID: datacenterID,
		workerID:     workerID,
		epochMs:      DefaultSnowflakeEpoch.UnixMilli(),
		maxDrift:     DefaultMaxBackwardDrift.Milliseconds(),
		now:          time.Now,
	}

	for _, op := range options {
		op(s)
	}

	return s, nil
}

// NextID returns the next id. It never returns an id smaller than or equal
// to one it returned before.
func (s *Snowflake) NextID() (int64, error) {
	for {
		old := s.state.Load()
		lastMs := old >> sequenceBits
		now := s.now().UnixMilli() - s.epochMs

		var next int64
		switch {
		case now > lastMs:
			next = now << sequenceBits
		case lastMs-now > s.maxDrift:
			return 0, errors.Wrapf(ErrClockMovedBackwards, "refusing to generate id for %dms", lastMs-now)
		case old&sequenceMask < sequenceMask:
			next = old + 1
		default:
			// sequence exhausted for lastMs, wait for the clock to pass it
			time.Sleep(100 * time.Microsecond)
			continue
		}

		if s.state.CompareAndSwap(old, next) {
			return s.compose(next), nil
		}
	}
}

func (s *Snowflake) compose(state int64) int64 {
	ms := state >> sequenceBits
	seq := state & sequenceMask
	return ms<<timestampShift | s.datacenterID<<datacenterIDShift | s.workerID<<workerIDShift | seq
}

// Time returns the generation time embedded in id.
func (s *Snowflake) Time(id int64) time.Time {
	return time.UnixMilli((id >> timestampShift) + s.epochMs)
}
