package treasure

import "github.com/prometheus/client_golang/prometheus"

var coinsAwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fitsession",
	Subsystem: "treasure",
	Name:      "coins_awarded_total",
	Help:      "Coins awarded per zone color.",
}, []string{"color"})

func init() {
	prometheus.MustRegister(coinsAwarded)
}
