package analytics

import (
	"time"

	"profitdash/internal/cache"
	"profitdash/internal/core"
)

// Report bundles everything the dashboard and profit tab render for one
// snapshot.
type Report struct {
	Summary          Summary        `json:"summary"`
	ProfitSeries     []SeriesPoint  `json:"profitSeries"`
	ProfitVsExpenses []Slice        `json:"profitVsExpenses"`
	TopProducts      []core.Product `json:"topProducts"`
}

// Build computes a report from scratch.
func Build(products []core.Product) Report {
	s := Summarize(products)
	return Report{
		Summary:          s,
		ProfitSeries:     ProfitSeries(products),
		ProfitVsExpenses: ProfitVsExpenses(s),
		TopProducts:      TopProducts(products, DefaultTopN),
	}
}

// Reporter memoises reports per (user, upload). A snapshot never changes
// under the same upload id, so the cache only needs invalidating on clear.
type Reporter struct {
	cache *cache.LRUCache[Report]
}

// NewReporter keeps up to size reports for ttl each.
func NewReporter(size int, ttl time.Duration, opts ...cache.Option) *Reporter {
	return &Reporter{cache: cache.NewLRUCache[Report]("reports", size, ttl, opts...)}
}

func reportKey(userID, uploadID string) string {
	return userID + "\x00" + uploadID
}

// Report returns the cached report for snap, computing it on a miss. Empty
// snapshots are not cached.
func (r *Reporter) Report(snap core.Snapshot) Report {
	if snap.Empty() || snap.UploadID == "" {
		return Build(snap.Products)
	}
	key := reportKey(snap.UserID, snap.UploadID)
	if rep, ok := r.cache.Get(key); ok {
		return rep
	}
	rep := Build(snap.Products)
	r.cache.Set(key, rep)
	return rep
}

// Forget drops every cached report of userID.
func (r *Reporter) Forget(userID string) int {
	return r.cache.DeletePrefix(userID + "\x00")
}

// Cache exposes the underlying cache so a cache.Manager can sweep it.
func (r *Reporter) Cache() *cache.LRUCache[Report] {
	return r.cache
}
