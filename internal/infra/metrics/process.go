package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, startTime, dbConns, dbAcquires, dbAcquireWait) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_build_info",
			Help: "Constant 1, labelled with the running version and commit.",
		},
		[]string{"version", "commit"},
	)
	startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_start_time_seconds",
		Help: "Unix time the billing process started.",
	})

	dbConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_db_pool_connections",
			Help: "Connections in the Postgres pool by state.",
		},
		[]string{"state"}, // total|idle|in_use
	)
	dbAcquires = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_db_pool_acquires",
			Help: "Cumulative pool acquires; empty counts acquires that had to wait for a connection.",
		},
		[]string{"kind"}, // all|empty|canceled
	)
	dbAcquireWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_db_pool_acquire_wait_seconds",
		Help: "Cumulative time spent acquiring pool connections.",
	})
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
	startTime.Set(float64(time.Now().Unix()))
}

// PoolSnapshot is the subset of pool statistics exported as gauges.
type PoolSnapshot struct {
	Total, Idle, InUse        int32
	Acquires, Empty, Canceled int64
	AcquireWait               time.Duration
}

func SetDBPoolStats(s PoolSnapshot) {
	dbConns.WithLabelValues("total").Set(float64(s.Total))
	dbConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbConns.WithLabelValues("in_use").Set(float64(s.InUse))
	dbAcquires.WithLabelValues("all").Set(float64(s.Acquires))
	dbAcquires.WithLabelValues("empty").Set(float64(s.Empty))
	dbAcquires.WithLabelValues("canceled").Set(float64(s.Canceled))
	dbAcquireWait.Set(s.AcquireWait.Seconds())
}
