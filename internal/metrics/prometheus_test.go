package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/GridProtectionAlliance/gsf-sub046/types"
)

func TestPrometheusCollector_LazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, "test")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordEntitiesReceived(10)
	p.RecordEntitiesProcessed(8)
	p.RecordEntitiesDiscarded(2, "timeout")
	p.RecordSortsByArrival(1)
	p.RecordFramePublished(8, 3, 0.002, false)
	p.RecordFramePublished(4, 0, 0.001, true)
	p.RecordPublishError()
	p.RecordWaitHandleExpiration()
	p.RecordQueueDepth(7)
	p.RecordUnpublishedSeconds(2)
	p.RecordStateTransition(types.StateStopped, types.StateStarted)
	p.RecordMessageIngested(5)
	p.RecordMessageRejected()
	p.RecordFrameDelivered("success")

	require.InDelta(t, 10, testutil.ToFloat64(p.entitiesReceived), 0)
	require.InDelta(t, 8, testutil.ToFloat64(p.entitiesProcessed), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.entitiesDiscarded.WithLabelValues("timeout")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.framesPublished.WithLabelValues("on_time")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.framesPublished.WithLabelValues("ahead")), 0)
	require.InDelta(t, 12, testutil.ToFloat64(p.entitiesPublished), 0)
	require.InDelta(t, 3, testutil.ToFloat64(p.entitiesDownsampled), 0)
	require.InDelta(t, 7, testutil.ToFloat64(p.queueDepth), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.stateTransitions.WithLabelValues("Stopped", "Started")), 0)
	require.InDelta(t, 5, testutil.ToFloat64(p.entitiesIngested), 0)

	count, err := testutil.GatherAndCount(reg, "test_publication_publish_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNewPrometheus_Defaults(t *testing.T) {
	p := NewPrometheus(nil, "")
	require.Equal(t, "concentrator", p.namespace)
	require.Equal(t, prometheus.DefaultRegisterer, p.reg)
}
