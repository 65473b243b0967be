package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marketsim/internal/engine"
)

// Metrics holds all Prometheus metrics for the simulation server.
type Metrics struct {
	TicksTotal  *prometheus.CounterVec // labels: outcome=generated|jump
	PointsTotal *prometheus.CounterVec // labels: ticker
	SpikesTotal *prometheus.CounterVec // labels: ticker
	TickDur     prometheus.Histogram
	Price       *prometheus.GaugeVec // labels: ticker
	Running     prometheus.Gauge
	SpeedSecs   prometheus.Gauge

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
	LatePoints           prometheus.Counter

	// Archive
	SQLiteCommitDur prometheus.Histogram
	ArchivedPoints  prometheus.Counter

	// Redis latest-state publisher
	RedisWriteDur            prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Live stream
	WSClients prometheus.Gauge

	// Simulated market session
	MarketState prometheus.Gauge // 0=closed, 1=open

	AlertsTotal *prometheus.CounterVec // labels: level, result=sent|failed
}

// NewMetrics registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_ticks_total",
			Help: "Simulation ticks by outcome (generated or clock jump)",
		}, []string{"outcome"}),
		PointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_points_total",
			Help: "Price points generated per instrument",
		}, []string{"ticker"}),
		SpikesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_spikes_total",
			Help: "Price steps that included a random spike",
		}, []string{"ticker"}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketsim_tick_duration_seconds",
			Help:    "Wall-clock time spent in one simulation tick",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		Price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketsim_price",
			Help: "Current simulated price per instrument",
		}, []string{"ticker"}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketsim_running",
			Help: "1 while the simulation timer is armed",
		}),
		SpeedSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketsim_speed_seconds",
			Help: "Wall-clock interval between ticks",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_fanout_drops_total",
			Help: "Updates dropped by the bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketsim_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		LatePoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketsim_late_points_total",
			Help: "Points dropped by the daily aggregator because their day had closed",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketsim_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		ArchivedPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketsim_archived_points_total",
			Help: "Price points committed to the SQLite archive",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketsim_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketsim_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketsim_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketsim_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketsim_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketsim_market_state",
			Help: "Simulated market session state (0=closed, 1=open)",
		}),

		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketsim_alerts_total",
			Help: "Alert deliveries by level and result",
		}, []string{"level", "result"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.PointsTotal,
		m.SpikesTotal,
		m.TickDur,
		m.Price,
		m.Running,
		m.SpeedSecs,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.LatePoints,
		m.SQLiteCommitDur,
		m.ArchivedPoints,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
		m.MarketState,
		m.AlertsTotal,
	)

	return m
}

// EngineHooks returns engine callbacks that feed these metrics. If health
// is non-nil its running flag and last tick time are kept current too.
func (m *Metrics) EngineHooks(health *HealthStatus) engine.Hooks {
	return engine.Hooks{
		OnTick: func(generated bool, took time.Duration) {
			outcome := "jump"
			if generated {
				outcome = "generated"
			}
			m.TicksTotal.WithLabelValues(outcome).Inc()
			m.TickDur.Observe(took.Seconds())
			if generated {
				m.MarketState.Set(1)
			} else {
				m.MarketState.Set(0)
			}
			if health != nil {
				health.SetLastTickTime(time.Now())
			}
		},
		OnPoint: func(ticker string, price float64, spiked bool) {
			m.PointsTotal.WithLabelValues(ticker).Inc()
			m.Price.WithLabelValues(ticker).Set(price)
			if spiked {
				m.SpikesTotal.WithLabelValues(ticker).Inc()
			}
		},
		OnStateChange: func(running bool, speed time.Duration) {
			if running {
				m.Running.Set(1)
			} else {
				m.Running.Set(0)
			}
			m.SpeedSecs.Set(speed.Seconds())
			if health != nil {
				health.SetEngineRunning(running)
			}
		},
	}
}
