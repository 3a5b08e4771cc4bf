// Package metrics implements the product-facing inference metrics sink: a
// bounded, time-indexed store of per-attempt records with recent() and
// summary() views. It is distinct from the OpenTelemetry plumbing in
// internal/observability, which is an operator-facing export path rather
// than this API-facing contract.
package metrics

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"selinfer/internal/config"
)

// NMax is the maximum number of retained entries; oldest entries are
// evicted first once the store is full.
const NMax = 10_000

// Record is one inference attempt.
type Record struct {
	StudentID     string    `json:"student_id"`
	Skill         string    `json:"skill,omitempty"`
	LatencyMS     float64   `json:"latency_ms"`
	Success       bool      `json:"success"`
	ErrorCategory string    `json:"error_category,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Summary is the aggregate view returned by Summary().
type Summary struct {
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	P95LatencyMS  float64 `json:"p95_latency_ms"`
	SuccessRate   float64 `json:"success_rate"`
}

// Sink is the bounded time-indexed metrics store. It prefers a durable
// Redis backend; if Redis is unavailable at construction or at any point
// during operation, it degrades to the in-memory ring buffer without
// surfacing an error to callers, emitting a one-shot warning.
type Sink struct {
	mu      sync.RWMutex
	ring    []Record // oldest-first; bounded to NMax
	redis   redis.UniversalClient
	warnOnce sync.Once
}

const redisKey = "sel:metrics:records"

// New constructs a Sink. When cfg.Enabled is false, or the Redis ping fails,
// it returns a Sink backed purely by the in-memory ring buffer.
func New(cfg config.RedisConfig) *Sink {
	s := &Sink{ring: make([]Record, 0, 256)}
	if !cfg.Enabled {
		return s
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Msg("metrics_sink_redis_unavailable_degrading_to_memory")
		return s
	}
	s.redis = client
	return s
}

// Record appends one record, evicting the oldest entry if the store is at
// capacity. Never returns an error to the caller; backend failures degrade
// silently (after a one-shot warning) to the in-memory path.
func (s *Sink) Record(ctx context.Context, r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.ring = append(s.ring, r)
	if len(s.ring) > NMax {
		s.ring = s.ring[len(s.ring)-NMax:]
	}
	s.mu.Unlock()

	if s.redis == nil {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(r.Timestamp.UnixNano()), Member: b})
	pipe.ZRemRangeByRank(ctx, redisKey, 0, -int64(NMax)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.warnOnce.Do(func() {
			log.Warn().Err(err).Msg("metrics_sink_redis_write_failed_degrading_to_memory")
		})
		s.redis = nil
	}
}

// Recent returns the newest-first list of up to limit records.
func (s *Sink) Recent(limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.ring) {
		limit = len(s.ring)
	}
	out := make([]Record, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.ring[len(s.ring)-1-i]
	}
	return out
}

// Summary computes aggregates over the retained window.
func (s *Sink) Summary() Summary {
	s.mu.RLock()
	records := make([]Record, len(s.ring))
	copy(records, s.ring)
	s.mu.RUnlock()

	sum := Summary{Total: len(records)}
	if sum.Total == 0 {
		return sum
	}

	latencies := make([]float64, 0, len(records))
	var latencySum float64
	for _, r := range records {
		if r.Success {
			sum.Successful++
		} else {
			sum.Failed++
		}
		latencies = append(latencies, r.LatencyMS)
		latencySum += r.LatencyMS
	}
	sum.AvgLatencyMS = latencySum / float64(sum.Total)
	sum.SuccessRate = float64(sum.Successful) / float64(sum.Total)

	sort.Float64s(latencies)
	sum.P95LatencyMS = percentile(latencies, 0.95)
	return sum
}

// percentile assumes latencies is sorted ascending.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
