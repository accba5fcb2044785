package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProductsCreated is a Prometheus counter for tracking the total number of products created.
	ProductsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "The total number of products created",
	})

	// ProductsUpdated counts full and partial product updates.
	ProductsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_updated_total",
		Help: "The total number of products updated",
	})

	// ProductsDeleted is a Prometheus counter for tracking the total number of products deleted.
	ProductsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_deleted_total",
		Help: "The total number of products deleted",
	})

	ValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_validation_failures_total",
		Help: "The total number of product payloads rejected by validation",
	})

	// OutboxEvents counts outbox events by final status (processed or failed).
	OutboxEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "The total number of outbox events handled by the worker",
	}, []string{"status"})
)
