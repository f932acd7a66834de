package node

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

const (
	opGet      = "get"
	opInfo     = "info"
	opSet      = "set"
	opUpdate   = "update"
	opRemove   = "remove"
	opChildren = "children"
)

var (
	recordsWritten = metrics.NewCounter(`dtree_records_written_total`)
	recordsRemoved = metrics.NewCounter(`dtree_records_removed_total`)
)

// observe records the duration and outcome of a public operation. It is meant
// to be deferred with a pointer to the named error result.
func observe(op string, start time.Time, err *error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dtree_node_ops_total{op=%q}`, op)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dtree_node_op_duration_seconds{op=%q}`, op)).Update(time.Since(start).Seconds())
	if err != nil && *err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dtree_node_op_errors_total{op=%q}`, op)).Inc()
	}
}
