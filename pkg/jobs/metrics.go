package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidmeta_jobs_total",
		Help: "Finished jobs by terminal status",
	}, []string{"status"})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidmeta_jobs_active",
		Help: "Jobs whose driver is currently running",
	})

	jobsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidmeta_jobs_evicted_total",
		Help: "Terminal jobs removed from the registry by the retention policy",
	})
)
