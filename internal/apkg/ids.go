package apkg

import "time"

// idSequence hands out ids that are unique within one export. It starts at the
// current time in milliseconds so ids look like the ones other tools create.
type idSequence struct {
	last int64
}

func newIDSequence(now time.Time) *idSequence {
	return &idSequence{last: now.UnixMilli()}
}

func (s *idSequence) Next() int64 {
	s.last++
	return s.last
}
