// Package baseline maintains adaptive per-key statistics the detection
// engine judges "unusual" against: running mean/variance per metric,
// small categorical history sets, recent failure timestamps, and the
// last known location per user.
package baseline

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// shardCount is the number of lock shards keys hash into.
	shardCount = 64

	// maxCategorySet caps each categorical history set. At that point new
	// values are dropped rather than evicting old ones; the sets exist for
	// first-time-seen checks, not full history.
	maxCategorySet = 64

	// maxFailureTimestamps caps the retained failure timestamps per IP.
	maxFailureTimestamps = 1024
)

// Stats is a snapshot of running statistics for one key+metric. A zero-count
// Stats is the cold state: callers must skip statistical checks, not error.
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
}

// Cold reports whether the stats carry fewer than min observations.
func (s Stats) Cold(min int) bool {
	return s.Count < min
}

// welford holds sufficient statistics for incremental mean/variance updates.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) observe(v float64) {
	w.count++
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)
}

func (w *welford) stats() Stats {
	s := Stats{Count: w.count, Mean: w.mean}
	if w.count > 1 {
		s.StdDev = math.Sqrt(w.m2 / float64(w.count-1))
	}
	return s
}

// location is the last-seen login location for a user.
type location struct {
	country string
	ts      time.Time
}

// shard holds all baseline state for the keys hashing to it.
type shard struct {
	mu         sync.Mutex
	metrics    map[string]*welford        // key\x00metric
	categories map[string]map[string]bool // key\x00field -> set of values
	failures   map[string][]time.Time     // source IP -> recent failure timestamps
	locations  map[string]location        // user -> last known location
}

// Store is the baseline store. Each method is safe for concurrent use; all
// state for one key lives under a single shard lock, and mutation happens in
// place. Entries are never deleted during a run — state lives for the
// lifetime of the process.
type Store struct {
	shards [shardCount]*shard
}

// NewStore creates an empty baseline store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{
			metrics:    make(map[string]*welford),
			categories: make(map[string]map[string]bool),
			failures:   make(map[string][]time.Time),
			locations:  make(map[string]location),
		}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Observe folds one numeric observation into the running statistics for
// key+metric. O(1) per call; history is never replayed.
func (s *Store) Observe(key, metric string, value float64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.metrics[key+"\x00"+metric]
	if !ok {
		w = &welford{}
		sh.metrics[key+"\x00"+metric] = w
	}
	w.observe(value)
}

// Stats returns the current statistics for key+metric. An unseen key yields
// the cold state (zero count).
func (s *Store) Stats(key, metric string) Stats {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if w, ok := sh.metrics[key+"\x00"+metric]; ok {
		return w.stats()
	}
	return Stats{}
}

// RecordCategory adds value to the history set for key+field. Growth is
// capped at maxCategorySet.
func (s *Store) RecordCategory(key, field, value string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.categories[key+"\x00"+field]
	if !ok {
		set = make(map[string]bool)
		sh.categories[key+"\x00"+field] = set
	}
	if len(set) >= maxCategorySet && !set[value] {
		return
	}
	set[value] = true
}

// HasCategory reports whether value has been seen before for key+field.
func (s *Store) HasCategory(key, field, value string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.categories[key+"\x00"+field]
	return ok && set[value]
}

// Categories returns the sorted history set for key+field.
func (s *Store) Categories(key, field string) []string {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.categories[key+"\x00"+field]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// RecordFailure records a failed login timestamp for an IP, pruning
// timestamps that fell out of the trailing window ending at ts.
func (s *Store) RecordFailure(ip string, ts time.Time, window time.Duration) {
	sh := s.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stamps := sh.failures[ip]
	cutoff := ts.Add(-window)
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) < maxFailureTimestamps {
		kept = append(kept, ts)
	}
	sh.failures[ip] = kept
}

// FailureCount returns how many recorded failures for ip fall inside the
// trailing window ending at now.
func (s *Store) FailureCount(ip string, window time.Duration, now time.Time) int {
	sh := s.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-window)
	n := 0
	for _, t := range sh.failures[ip] {
		if t.After(cutoff) && !t.After(now) {
			n++
		}
	}
	return n
}

// LastLocation returns the last known login location for a user.
func (s *Store) LastLocation(user string) (country string, ts time.Time, ok bool) {
	sh := s.shardFor(user)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	loc, ok := sh.locations[user]
	return loc.country, loc.ts, ok
}

// SetLastLocation records the most recent login location for a user.
func (s *Store) SetLastLocation(user, country string, ts time.Time) {
	sh := s.shardFor(user)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.locations[user] = location{country: country, ts: ts}
}
