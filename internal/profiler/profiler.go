// Package profiler collects CPU and heap profiles and serves pprof and
// metrics endpoints for long-running sessions.
package profiler

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"time"

	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
)

// Profiler handles profile collection and the diagnostics server.
type Profiler struct {
	cpuFile   *os.File
	memFile   string
	server    *http.Server
	listener  net.Listener
	startTime time.Time
	log       *logger.Logger
}

// Config configures the profiler. Zero fields are disabled.
type Config struct {
	CPUProfile string // File for CPU profile
	MemProfile string // File for heap profile written on Stop
	HTTPAddr   string // Address for the diagnostics server (e.g., "localhost:6060")

	// Metrics is exported at /metrics; defaults to metrics.Global()
	Metrics *metrics.Collector
	Logger  *logger.Logger
}

// New starts the configured profiles and the diagnostics server.
func New(cfg Config) (*Profiler, error) {
	p := &Profiler{
		memFile:   cfg.MemProfile,
		startTime: time.Now(),
		log:       cfg.Logger,
	}
	if p.log == nil {
		p.log = logger.Default().WithPrefix("PROF")
	}

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile: %w", err)
		}
		if err := rpprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		p.cpuFile = f
	}

	if cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			p.stopCPU()
			return nil, fmt.Errorf("listening on %s: %w", cfg.HTTPAddr, err)
		}
		collector := cfg.Metrics
		if collector == nil {
			collector = metrics.Global()
		}
		p.listener = ln
		p.server = &http.Server{
			Handler:      NewMux(collector),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.log.Error("diagnostics server: %v", err)
			}
		}()
		p.log.Debug("diagnostics server on %s", ln.Addr())
	}

	return p, nil
}

// NewMux returns the diagnostics handler: pprof under /debug/pprof/ and
// the collector in Prometheus text format at /metrics.
func NewMux(collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(collector.ExportPrometheus()))
	})
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
		data, err := collector.Export()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Addr returns the diagnostics server address, or "" when disabled.
func (p *Profiler) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *Profiler) stopCPU() error {
	if p.cpuFile == nil {
		return nil
	}
	rpprof.StopCPUProfile()
	err := p.cpuFile.Close()
	p.cpuFile = nil
	return err
}

// Stop stops profiling, writes the heap profile and closes the server.
func (p *Profiler) Stop() error {
	var errs []error

	if err := p.stopCPU(); err != nil {
		errs = append(errs, fmt.Errorf("close CPU profile: %w", err))
	}

	if p.memFile != "" {
		runtime.GC()
		if err := writeHeapProfile(p.memFile); err != nil {
			errs = append(errs, err)
		}
	}

	if p.server != nil {
		if err := p.server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close diagnostics server: %w", err))
		}
	}

	return errors.Join(errs...)
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create memory profile: %w", err)
	}
	defer f.Close()
	if err := rpprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write memory profile: %w", err)
	}
	return nil
}

// Duration returns the time since profiler started
func (p *Profiler) Duration() time.Duration {
	return time.Since(p.startTime)
}

// Stats returns current memory statistics
func Stats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		HeapAlloc:  m.HeapAlloc,
		HeapInuse:  m.HeapInuse,
		Goroutines: runtime.NumGoroutine(),
	}
}

// MemStats contains memory statistics
type MemStats struct {
	Alloc      uint64
	TotalAlloc uint64
	Sys        uint64
	NumGC      uint32
	HeapAlloc  uint64
	HeapInuse  uint64
	Goroutines int
}

func (m MemStats) String() string {
	return fmt.Sprintf(
		"Alloc: %s, HeapAlloc: %s, Sys: %s, NumGC: %d, Goroutines: %d",
		formatBytes(m.Alloc),
		formatBytes(m.HeapAlloc),
		formatBytes(m.Sys),
		m.NumGC,
		m.Goroutines,
	)
}

// formatBytes converts bytes to human-readable format
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
