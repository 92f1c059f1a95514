package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("sendctl", "GET", "/health", 200, 12*time.Millisecond)
	RecordTransfer(RoleSender, "ok", 40*time.Millisecond)

	before := testutil.ToFloat64(packetsDropped.WithLabelValues(RoleReceiver, ReasonChecksum))
	RecordPacketDropped(RoleReceiver, ReasonChecksum)
	after := testutil.ToFloat64(packetsDropped.WithLabelValues(RoleReceiver, ReasonChecksum))
	if after != before+1 {
		t.Fatalf("drop counter did not advance: before=%v after=%v", before, after)
	}

	before = testutil.ToFloat64(retransmits)
	RecordRetransmit()
	if got := testutil.ToFloat64(retransmits); got != before+1 {
		t.Fatalf("retransmit counter did not advance: %v", got)
	}

	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}
