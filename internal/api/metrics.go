package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/fanout"
	"github.com/nerrad567/gray-logic-hub/internal/ingest"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Bus           BusMetrics     `json:"bus"`
	Ingest        *ingest.Stats  `json:"ingest,omitempty"`
	Fanout        FanoutMetrics  `json:"fanout"`
	Relock        *RelockMetrics `json:"relock,omitempty"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// BusMetrics contains MQTT client statistics.
type BusMetrics struct {
	Connected bool `json:"connected"`
}

// FanoutMetrics contains subscriber queue statistics.
type FanoutMetrics struct {
	Subscribers  int                      `json:"subscribers"`
	TotalDropped uint64                   `json:"total_dropped"`
	PerSub       []fanout.SubscriberStats `json:"per_subscriber"`
}

// RelockMetrics contains auto-relock timer statistics.
type RelockMetrics struct {
	Pending []string `json:"pending"`
	Fired   uint64   `json:"fired"`
}

// DeviceMetrics contains store statistics.
type DeviceMetrics struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns runtime, bus, ingest, fanout and store metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
	}

	if s.bus != nil {
		metrics.Bus.Connected = s.bus.IsConnected()
	}
	if s.ingest != nil {
		stats := s.ingest.Stats()
		metrics.Ingest = &stats
	}
	if s.relock != nil {
		metrics.Relock = &RelockMetrics{Pending: s.relock.Active(), Fired: s.relock.Fired()}
	}

	subs := s.hub.Stats()
	metrics.Fanout = FanoutMetrics{Subscribers: len(subs), PerSub: subs}
	for _, sub := range subs {
		metrics.Fanout.TotalDropped += sub.Dropped
	}

	counts := s.store.CountByKind()
	metrics.Devices.ByKind = make(map[string]int, len(device.AllKinds))
	for _, k := range device.AllKinds {
		metrics.Devices.ByKind[string(k)] = counts[k]
		metrics.Devices.Total += counts[k]
	}

	writeJSON(w, http.StatusOK, metrics)
}
