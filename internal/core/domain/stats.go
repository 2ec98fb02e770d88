package domain

// CacheStats is a snapshot of the object store bookkeeping.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Used      int    `json:"used"`
	LastRun   int    `json:"lastRun"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}
