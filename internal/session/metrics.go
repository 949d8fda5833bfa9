package session

import "github.com/VictoriaMetrics/metrics"

// Store-level counters, exported on the /metrics endpoint of the serve
// command.
var (
	metricOpens         = metrics.GetOrCreateCounter(`mqtt_session_store_opens_total`)
	metricCreates       = metrics.GetOrCreateCounter(`mqtt_session_store_creates_total`)
	metricDeletes       = metrics.GetOrCreateCounter(`mqtt_session_store_deletes_total`)
	metricCommits       = metrics.GetOrCreateCounter(`mqtt_session_store_commits_total`)
	metricCommittedRows = metrics.GetOrCreateCounter(`mqtt_session_store_committed_rows_total`)
	metricTxnAborts     = metrics.GetOrCreateCounter(`mqtt_session_store_txn_aborts_total`)
)
