package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_ticks_total", Help: "Endpoint ticks by outcome",
	}, []string{"outcome"})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_tick_duration_seconds", Help: "Endpoint tick duration",
		Buckets: prometheus.DefBuckets,
	})
	mPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_tick_panics_total", Help: "Ticks aborted by a recovered panic",
	})
	mReschedules = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_reschedules_total", Help: "Timers re-armed after an interval change",
	})
	mActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_active_endpoints", Help: "Endpoints with a running timer",
	})
)
