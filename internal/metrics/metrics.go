package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// CheckoutsTotal counts checkout attempts by queue and outcome.
	CheckoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modqueue",
		Subsystem: "queue",
		Name:      "checkouts_total",
		Help:      "Checkout attempts, labeled by task type and result (leased, empty, unauthorized, error).",
	}, []string{"task_type", "result"})

	// TransitionsTotal counts lease transitions other than checkout.
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modqueue",
		Subsystem: "queue",
		Name:      "transitions_total",
		Help:      "Lease transitions, labeled by task type and activity action.",
	}, []string{"task_type", "action"})

	TxRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modqueue",
		Subsystem: "store",
		Name:      "transaction_retries_total",
		Help:      "Transactions retried after a store conflict, labeled by operation.",
	}, []string{"operation"})

	// QueueDepth is refreshed by the lease sweeper.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "modqueue",
		Subsystem: "queue",
		Name:      "tasks",
		Help:      "Tasks per task type and status as of the last sweep.",
	}, []string{"task_type", "status"})

	ReportsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modqueue",
		Subsystem: "reports",
		Name:      "ingested_total",
		Help:      "Raw reports processed, labeled by result (grouped, duplicate, dropped, error).",
	}, []string{"result"})

	RecalculatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modqueue",
		Subsystem: "recalculation",
		Name:      "tasks_total",
		Help:      "Tasks visited by priority recalculation, labeled by result (updated, error).",
	}, []string{"result"})

	ConsumerDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modqueue",
		Subsystem: "rabbitmq",
		Name:      "deliveries_total",
		Help:      "RabbitMQ report deliveries, labeled by result (ack, nack).",
	}, []string{"result"})
)

// Register registers all metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			CheckoutsTotal,
			TransitionsTotal,
			TxRetriesTotal,
			QueueDepth,
			ReportsIngestedTotal,
			RecalculatedTotal,
			ConsumerDeliveriesTotal,
		)
	})
}
