package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contesthub_queries_opened_total",
		Help: "List queries opened by resource",
	}, []string{"resource"})

	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contesthub_pages_fetched_total",
		Help: "Pages fetched from the backend by resource",
	}, []string{"resource"})

	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contesthub_query_errors_total",
		Help: "List queries that entered the error state by resource",
	}, []string{"resource"})

	queriesSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contesthub_queries_superseded_total",
		Help: "Queries closed while a fetch was still in flight",
	})

	batchPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contesthub_batch_pages_fetched_total",
		Help: "Pages fetched by batch exports",
	})
)
