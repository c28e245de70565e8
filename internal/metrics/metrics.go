// Package metrics declares the bot's prometheus collectors.
// The gateway serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JoinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joinbot_join_attempts_total",
		Help: "Join attempt sequences by terminal outcome",
	}, []string{"outcome"})

	JoinAttemptSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "joinbot_join_attempt_seconds",
		Help:    "Wall time of a full join attempt sequence",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ScheduleTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joinbot_schedule_triggers_total",
		Help: "Scheduler trigger firings by result",
	}, []string{"result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joinbot_notifications_total",
		Help: "Outbound notifications by result",
	}, []string{"result"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "joinbot_commands_total",
		Help: "Inbound chat commands by parsed kind",
	}, []string{"kind"})
)
