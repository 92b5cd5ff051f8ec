package metrics

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const InstanceLabel = "instance"

const (
	IOPSLimit          = "rds_iops_limit"
	BurstIOPSLimit     = "rds_burst_iops_limit"
	BurstCreditBalance = "burst_credit_balance"
	WriteIOPS          = "write_iops"
	ReadIOPS           = "read_iops"
	TotalIOPS          = "total_iops"
)

type CollectionStatus string

const (
	CollectionStatusOK    CollectionStatus = "ok"
	CollectionStatusError CollectionStatus = "error"
)

var gaugeHelp = map[string]string{
	IOPSLimit:          "IOPS limit",
	BurstIOPSLimit:     "Burst IOPS limit",
	BurstCreditBalance: "Burst credit %",
	WriteIOPS:          "Write IOPS",
	ReadIOPS:           "Read IOPS",
	TotalIOPS:          "Total IOPS",
}

// GaugeNames lists every per instance gauge the exporter can publish.
var GaugeNames = []string{IOPSLimit, BurstIOPSLimit, BurstCreditBalance, WriteIOPS, ReadIOPS, TotalIOPS}

func IsKnownGauge(name string) bool {
	_, ok := gaugeHelp[name]
	return ok
}

type timeSinceFunc func(t time.Time) time.Duration

// Used to override time sensitive properties in tests.
var timeSinceFn = timeSinceFunc(func(t time.Time) time.Duration {
	return time.Since(t)
})

// Registry holds the exporter gauges. Updates of one instance are applied
// under a lock shared with Gather, so a scrape never observes half of an
// instance update.
type Registry struct {
	mu  sync.RWMutex
	reg *prometheus.Registry

	gauges map[string]*prometheus.GaugeVec

	collectionsTotal   *prometheus.CounterVec
	collectionDuration prometheus.Histogram
}

var _ prometheus.Gatherer = (*Registry)(nil)

// NewRegistry registers the enabled gauges. An empty list enables all of them.
func NewRegistry(enabled []string) (*Registry, error) {
	if len(enabled) == 0 {
		enabled = GaugeNames
	}

	r := &Registry{
		reg:    prometheus.NewRegistry(),
		gauges: make(map[string]*prometheus.GaugeVec, len(enabled)),
		collectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rds_exporter_collections_total",
			Help: "Counter tracking instance collections and statuses",
		}, []string{"status"}),
		collectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rds_exporter_collection_duration_seconds",
			Help:    "Histogram tracking fleet collection durations in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30},
		}),
	}

	var errs []error
	for _, name := range enabled {
		help, ok := gaugeHelp[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown metric %q", name))
			continue
		}
		if _, dup := r.gauges[name]; dup {
			continue
		}
		r.gauges[name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, []string{InstanceLabel})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	collectors := []prometheus.Collector{r.collectionsTotal, r.collectionDuration}
	for _, g := range r.gauges {
		collectors = append(collectors, g)
	}
	for _, c := range collectors {
		if err := r.reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return r, nil
}

// Enabled returns the registered gauge names in publication order.
func (r *Registry) Enabled() []string {
	var names []string
	for _, name := range GaugeNames {
		if _, ok := r.gauges[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Apply writes all updates of the set. Gauges that are not enabled are
// skipped. Series of other instances are not touched.
func (r *Registry) Apply(set GaugeUpdateSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range set.Updates {
		g, ok := r.gauges[u.Name]
		if !ok {
			continue
		}
		g.WithLabelValues(set.Instance).Set(u.Value)
	}
}

func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reg.Gather()
}

func collectionStatus(err error) CollectionStatus {
	if err != nil {
		return CollectionStatusError
	}
	return CollectionStatusOK
}

func (r *Registry) IncCollectionsTotal(err error) {
	r.collectionsTotal.WithLabelValues(string(collectionStatus(err))).Inc()
}

func (r *Registry) ObserveCollectionDuration(start time.Time) {
	r.collectionDuration.Observe(timeSinceFn(start).Seconds())
}

// GaugeUpdate is a single gauge value of an instance.
type GaugeUpdate struct {
	Name  string
	Value float64
}

// GaugeUpdateSet is the complete set of values computed for one instance in
// one collection cycle.
type GaugeUpdateSet struct {
	Instance string
	Updates  []GaugeUpdate
}

func (s *GaugeUpdateSet) Set(name string, value float64) {
	s.Updates = append(s.Updates, GaugeUpdate{Name: name, Value: value})
}

func (s GaugeUpdateSet) Get(name string) (float64, bool) {
	idx := slices.IndexFunc(s.Updates, func(u GaugeUpdate) bool { return u.Name == name })
	if idx < 0 {
		return 0, false
	}
	return s.Updates[idx].Value, true
}
