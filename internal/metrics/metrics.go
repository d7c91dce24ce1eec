package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Downloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classeviva", Name: "downloads_total", Help: "Didactic attachments downloaded",
	})
	DownloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classeviva", Name: "download_errors_total", Help: "Failed attachment downloads",
	})
	Evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classeviva", Name: "cache_evictions_total", Help: "Cached items removed by age",
	})
	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classeviva", Name: "notifications_total", Help: "New-content notifications emitted",
	}, []string{"category"})
)

func init() {
	prometheus.MustRegister(Downloads, DownloadErrors, Evictions, Notifications)
}

func Handler() http.Handler { return promhttp.Handler() }
