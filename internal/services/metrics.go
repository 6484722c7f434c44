package services

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type MetricSample struct {
	CapturedAt        time.Time `json:"capturedAt"`
	ProcessRSSBytes   int64     `json:"processRssBytes"`
	SystemMemoryTotal int64     `json:"systemMemoryTotalBytes"`
	SystemMemoryUsed  int64     `json:"systemMemoryUsedBytes"`
	DiskTotalBytes    int64     `json:"diskTotalBytes"`
	DiskUsedBytes     int64     `json:"diskUsedBytes"`
	ProcessCpuLoad    float64   `json:"processCpuLoad"`
	SystemCpuLoad     float64   `json:"systemCpuLoad"`
}

func CaptureMetrics(diskPath string) MetricSample {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	sample := MetricSample{CapturedAt: time.Now().UTC()}
	if memStat, err := mem.VirtualMemory(); err == nil {
		sample.SystemMemoryTotal = int64(memStat.Total)
		sample.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	diskStat, err := disk.Usage(diskPath)
	if err != nil {
		diskStat, err = disk.Usage("/")
	}
	if err == nil {
		sample.DiskTotalBytes = int64(diskStat.Total)
		sample.DiskUsedBytes = int64(diskStat.Used)
	}
	if proc != nil {
		if rss, _ := proc.MemoryInfo(); rss != nil {
			sample.ProcessRSSBytes = int64(rss.RSS)
		}
		cpuPerc, _ := proc.CPUPercent()
		sample.ProcessCpuLoad = cpuPerc / 100.0
	}
	if sysCPU, _ := cpu.Percent(0, false); len(sysCPU) > 0 {
		sample.SystemCpuLoad = sysCPU[0] / 100.0
	}
	return sample
}

// MetricsHistory is a fixed-size ring of the most recent samples.
type MetricsHistory struct {
	mu      sync.Mutex
	samples []MetricSample
	next    int
	full    bool
}

func NewMetricsHistory(size int) *MetricsHistory {
	if size <= 0 {
		size = 1
	}
	return &MetricsHistory{samples: make([]MetricSample, size)}
}

func (h *MetricsHistory) Add(sample MetricSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = sample
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

// Latest returns up to limit samples, oldest first.
func (h *MetricsHistory) Latest(limit int) []MetricSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := h.next
	if h.full {
		count = len(h.samples)
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	items := make([]MetricSample, 0, limit)
	start := h.next - limit
	for i := 0; i < limit; i++ {
		idx := (start + i + len(h.samples)) % len(h.samples)
		items = append(items, h.samples[idx])
	}
	return items
}

type hostGauges struct {
	processRSS  prometheus.Gauge
	memoryUsed  prometheus.Gauge
	diskUsed    prometheus.Gauge
	processCPU  prometheus.Gauge
	systemCPU   prometheus.Gauge
	memoryTotal prometheus.Gauge
	diskTotal   prometheus.Gauge
}

func newHostGauges(reg prometheus.Registerer) hostGauges {
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "collegehub", Subsystem: "host", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}
	return hostGauges{
		processRSS:  gauge("process_rss_bytes", "Resident memory of the server process."),
		memoryUsed:  gauge("memory_used_bytes", "System memory in use."),
		memoryTotal: gauge("memory_total_bytes", "Total system memory."),
		diskUsed:    gauge("disk_used_bytes", "Used bytes on the upload volume."),
		diskTotal:   gauge("disk_total_bytes", "Size of the upload volume."),
		processCPU:  gauge("process_cpu_load", "Process CPU load, 0-1."),
		systemCPU:   gauge("system_cpu_load", "System CPU load, 0-1."),
	}
}

func (g hostGauges) set(s MetricSample) {
	g.processRSS.Set(float64(s.ProcessRSSBytes))
	g.memoryUsed.Set(float64(s.SystemMemoryUsed))
	g.memoryTotal.Set(float64(s.SystemMemoryTotal))
	g.diskUsed.Set(float64(s.DiskUsedBytes))
	g.diskTotal.Set(float64(s.DiskTotalBytes))
	g.processCPU.Set(s.ProcessCpuLoad)
	g.systemCPU.Set(s.SystemCpuLoad)
}

// MetricsSampler captures a sample every interval and fans it out to the
// gauges, the history ring and the websocket hub.
type MetricsSampler struct {
	DiskPath string
	Interval time.Duration
	History  *MetricsHistory
	Hub      *MetricsHub
	gauges   hostGauges
	capture  func(string) MetricSample
}

func NewMetricsSampler(diskPath string, interval time.Duration, history *MetricsHistory, hub *MetricsHub, reg prometheus.Registerer) *MetricsSampler {
	return &MetricsSampler{
		DiskPath: diskPath,
		Interval: interval,
		History:  history,
		Hub:      hub,
		gauges:   newHostGauges(reg),
		capture:  CaptureMetrics,
	}
}

func (s *MetricsSampler) Sample() MetricSample {
	sample := s.capture(s.DiskPath)
	s.gauges.set(sample)
	s.History.Add(sample)
	s.Hub.Broadcast(sample)
	return sample
}

func (s *MetricsSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.Sample()
	for {
		select {
		case <-ticker.C:
			s.Sample()
		case <-ctx.Done():
			return
		}
	}
}

type MetricsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	ch      chan MetricSample
}

func NewMetricsHub() *MetricsHub {
	return &MetricsHub{
		clients: map[*websocket.Conn]bool{},
		ch:      make(chan MetricSample, 16),
	}
}

func (h *MetricsHub) Run(ctx context.Context) {
	for {
		select {
		case sample := <-h.ch:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(sample); err != nil {
					log.Printf("metrics hub: dropping client: %v", err)
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *MetricsHub) Broadcast(sample MetricSample) {
	select {
	case h.ch <- sample:
	default:
	}
}

func (h *MetricsHub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *MetricsHub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func (h *MetricsHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
