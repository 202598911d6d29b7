package blockcache

// Stats counts cache activity.
type Stats struct {
	// Hits and Misses count valid Read and Write requests.
	Hits, Misses uint64
	// Evictions counts resident blocks that lost their slot
	// to a miss. Flush does not evict.
	Evictions uint64
	// WriteBacks counts device block writes.
	WriteBacks uint64
	// DeviceReads counts device block reads.
	DeviceReads uint64
	// Syncs counts device syncs issued by Sync and Flush.
	Syncs uint64
	// Flushes counts completed calls to Flush (and Close).
	Flushes uint64
	// InvalidRequests counts rejected Read and Write requests.
	InvalidRequests uint64
}

// HitRatio returns Hits / (Hits + Misses), or 0 before any request.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
