package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_sessions",
		Help: "Active websocket chat sessions",
	})

	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages committed, by message type",
	}, []string{"type"})

	Uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_uploads_total",
		Help: "Attachment uploads, by result",
	}, []string{"result"})

	ThumbnailFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_thumbnail_failures_total",
		Help: "Thumbnails that could not be generated or stored",
	})

	Listeners = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_listeners",
		Help: "Live store listeners, by kind",
	}, []string{"kind"})
)

var once sync.Once

// Init registers the collectors with the default registry
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Sessions, MessagesSent, Uploads, ThumbnailFailures, Listeners)
	})
}
