package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gatewarden",
	Name:      "resolutions_total",
	Help:      "Terminal outcomes of whitelist decision events, by status.",
}, []string{"status"})
