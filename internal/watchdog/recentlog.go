package watchdog

// RecentLog accumulates lines while the controller is unhealthy. It holds at
// most limit lines; when full the oldest line is discarded and counted.
type RecentLog struct {
	limit   int
	lines   []string
	dropped int
}

// NewRecentLog returns an empty log. A limit below 1 is treated as 1.
func NewRecentLog(limit int) *RecentLog {
	if limit < 1 {
		limit = 1
	}
	return &RecentLog{limit: limit}
}

// Append adds a line, evicting the oldest when full.
func (r *RecentLog) Append(line string) {
	if len(r.lines) == r.limit {
		copy(r.lines, r.lines[1:])
		r.lines = r.lines[:len(r.lines)-1]
		r.dropped++
	}
	r.lines = append(r.lines, line)
}

// Len returns the number of buffered lines.
func (r *RecentLog) Len() int {
	return len(r.lines)
}

// Drain returns the buffered lines and the number evicted since the last
// drain, then clears the log.
func (r *RecentLog) Drain() ([]string, int) {
	lines, dropped := r.lines, r.dropped
	r.lines = nil
	r.dropped = 0
	return lines, dropped
}
