// Package metrics is the exposition boundary: scrapers hand computed values
// to a Sink and never touch the prometheus registry directly.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dirsrv-monitor/pkg/logger"
)

// Sink registers gauges and counters lazily, keyed by metric name. The first
// Set/Add for a name fixes its label keys; later calls must use the same
// keys, which callers guarantee by emitting dimensionally stable label sets.
type Sink struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
	counters map[string]*prometheus.CounterVec
	help     map[string]string
}

// NewSink builds a sink on a fresh registry with the standard process and Go
// runtime collectors attached.
func NewSink() *Sink {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return &Sink{
		registry: registry,
		gauges:   make(map[string]*prometheus.GaugeVec),
		counters: make(map[string]*prometheus.CounterVec),
		help:     make(map[string]string),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Describe records a help string used when the metric is first registered.
// Calling it after first use has no effect.
func (s *Sink) Describe(name, help string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.help[name] = help
}

func labelKeys(labels prometheus.Labels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Sink) helpFor(name string) string {
	if h, ok := s.help[name]; ok {
		return h
	}
	return "dirsrv-monitor scraped value"
}

func (s *Sink) gauge(name string, labels prometheus.Labels) *prometheus.GaugeVec {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: name, Help: s.helpFor(name)},
			labelKeys(labels),
		)
		if err := s.registry.Register(vec); err != nil {
			logger.Error("gauge registration failed", zap.String("metric", name), zap.Error(err))
			return nil
		}
		s.gauges[name] = vec
	}
	return vec
}

func (s *Sink) counter(name string, labels prometheus.Labels) *prometheus.CounterVec {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, ok := s.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: name, Help: s.helpFor(name)},
			labelKeys(labels),
		)
		if err := s.registry.Register(vec); err != nil {
			logger.Error("counter registration failed", zap.String("metric", name), zap.Error(err))
			return nil
		}
		s.counters[name] = vec
	}
	return vec
}

// Set writes a gauge value for the given label set.
func (s *Sink) Set(name string, labels prometheus.Labels, value float64) {
	vec := s.gauge(name, labels)
	if vec == nil {
		return
	}
	g, err := vec.GetMetricWith(labels)
	if err != nil {
		logger.Error("gauge label mismatch", zap.String("metric", name), zap.Error(err))
		return
	}
	g.Set(value)
}

// Add increments a counter by delta for the given label set.
func (s *Sink) Add(name string, labels prometheus.Labels, delta float64) {
	vec := s.counter(name, labels)
	if vec == nil {
		return
	}
	c, err := vec.GetMetricWith(labels)
	if err != nil {
		logger.Error("counter label mismatch", zap.String("metric", name), zap.Error(err))
		return
	}
	c.Add(delta)
}
