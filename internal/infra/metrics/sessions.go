package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sessionSubmitsTotal,
		sessionSwitchesTotal,
		sessionResetsTotal,
		sessionReplayTurnsTotal,
		sessionFaultsTotal,
	)
}

var (
	sessionSubmitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_submits_total",
			Help: "Submitted user turns by outcome (ok/busy/empty/create_failed/completion_failed/superseded/error).",
		},
		[]string{"result"},
	)

	sessionSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_switches_total",
			Help: "Session switches by outcome (ok/busy/not_found/load_failed/superseded/error).",
		},
		[]string{"result"},
	)

	sessionResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_resets_total",
			Help: "Explicit resets to a blank session.",
		},
	)

	sessionReplayTurnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_replay_turns_total",
			Help: "User turns replayed into the completion context during switches.",
		},
	)

	sessionFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_faults_total",
			Help: "Background faults by kind (persistence/replay).",
		},
		[]string{"kind"},
	)
)

func IncSubmit(result string) { sessionSubmitsTotal.WithLabelValues(norm(result)).Inc() }

func IncSwitch(result string) { sessionSwitchesTotal.WithLabelValues(norm(result)).Inc() }

func IncReset() { sessionResetsTotal.Inc() }

func AddReplayTurns(n int) { sessionReplayTurnsTotal.Add(float64(n)) }

func IncFault(kind string) { sessionFaultsTotal.WithLabelValues(norm(kind)).Inc() }
