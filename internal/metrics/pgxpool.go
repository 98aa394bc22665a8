package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics exposes the Postgres registry pool statistics.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "clientops",
			Subsystem: "registry_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(pool.Stat()))
		})
	}
	prometheus.MustRegister(
		gauge("acquired_conns", "Connections currently checked out of the registry pool.", (*pgxpool.Stat).AcquiredConns),
		gauge("idle_conns", "Idle connections in the registry pool.", (*pgxpool.Stat).IdleConns),
		gauge("total_conns", "All connections in the registry pool.", (*pgxpool.Stat).TotalConns),
		gauge("max_conns", "Registry pool size limit.", (*pgxpool.Stat).MaxConns),
	)
}
