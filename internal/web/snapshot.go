package web

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// SnapshotStore keeps the latest composited frame as JPEG.
// Offer is called from the frame loop; Latest from HTTP handlers.
type SnapshotStore struct {
	interval time.Duration
	quality  int
	now      func() time.Time

	mu      sync.RWMutex
	jpeg    []byte
	encoded time.Time
}

// NewSnapshotStore encodes at most one frame per interval at the given JPEG quality (1-100).
func NewSnapshotStore(interval time.Duration, quality int) *SnapshotStore {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &SnapshotStore{
		interval: interval,
		quality:  quality,
		now:      time.Now,
	}
}

// Offer encodes frame unless the previous encode is more recent than the
// interval. It reports whether the frame was stored.
func (s *SnapshotStore) Offer(frame gocv.Mat) (bool, error) {
	if frame.Empty() {
		return false, nil
	}
	now := s.now()
	s.mu.RLock()
	due := s.jpeg == nil || now.Sub(s.encoded) >= s.interval
	s.mu.RUnlock()
	if !due {
		return false, nil
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	data := bytes.Clone(buf.GetBytes())
	buf.Close()

	s.mu.Lock()
	s.jpeg = data
	s.encoded = now
	s.mu.Unlock()
	return true, nil
}

// Latest returns the last stored JPEG and when it was encoded.
// ok is false until a frame has been offered.
func (s *SnapshotStore) Latest() (data []byte, at time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.jpeg == nil {
		return nil, time.Time{}, false
	}
	return s.jpeg, s.encoded, true
}
