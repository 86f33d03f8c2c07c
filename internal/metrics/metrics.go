package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsIngested counts items accepted into the pending collection.
	ItemsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kurier_items_ingested_total",
		Help: "Items accepted into the pending collection.",
	})

	// ItemsApproved counts applied approve decisions.
	ItemsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kurier_items_approved_total",
		Help: "Approve decisions applied.",
	})

	// ItemsRejected counts applied reject decisions.
	ItemsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kurier_items_rejected_total",
		Help: "Reject decisions applied.",
	})

	// ItemsPublished counts approved items drained into a digest.
	ItemsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kurier_items_published_total",
		Help: "Approved items published and consumed by the digest.",
	})

	// CallbacksRejected counts decision events refused before reaching the
	// state machine, labeled by the refusal condition.
	CallbacksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kurier_callbacks_rejected_total",
		Help: "Decision events refused at the ingress.",
	}, []string{"condition"})
)

// Handler exposes the default registry for the HTTP surface.
func Handler() http.Handler {
	return promhttp.Handler()
}
