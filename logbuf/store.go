package logbuf

import "time"

// Store ties together the ring buffer, optional file sink, and broadcast
// hub so callers have one append path to reach all three (spec.md §4.6).
type Store struct {
	Ring *Ring
	Hub  *Hub

	sink *FileSink
	now  func() time.Time
}

// NewStore creates a Store with a ring of the given capacity. SetFileSink
// may be called afterward to enable file persistence.
func NewStore(ringCapacity int) *Store {
	return &Store{
		Ring: NewRing(ringCapacity),
		Hub:  NewHub(),
		now:  time.Now,
	}
}

// SetFileSink installs or replaces the file sink. Passing nil disables file
// persistence.
func (s *Store) SetFileSink(sink *FileSink) {
	s.sink = sink
}

// Append appends a record with the given level/category/message/fields to
// the ring, the file sink (if any), and broadcasts it to WebSocket
// subscribers, in that order, matching §4.6's append path.
func (s *Store) Append(level, category, message string, fields map[string]any) Record {
	rec := Record{
		Timestamp: s.now(),
		Level:     level,
		Category:  category,
		Message:   message,
		Fields:    fields,
	}

	s.Ring.Append(rec)
	if s.sink != nil {
		// Best-effort: a file I/O error is ignored, so it never stops the
		// broadcast. The write runs synchronously on this goroutine.
		_ = s.sink.Write(rec)
	}
	s.Hub.Broadcast(rec)
	return rec
}
