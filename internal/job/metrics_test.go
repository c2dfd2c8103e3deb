package job

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// collectMetric returns the metric of c whose labels include all of labels,
// or nil.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		match := 0
		for _, lp := range d.GetLabel() {
			if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
				match++
			}
		}
		if match == len(labels) {
			return d
		}
	}
	return nil
}

func counterValue(t *testing.T, c prometheus.Collector, labels map[string]string) float64 {
	t.Helper()
	if m := collectMetric(t, c, labels); m != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

func histogramCount(t *testing.T, c prometheus.Collector, labels map[string]string) uint64 {
	t.Helper()
	if m := collectMetric(t, c, labels); m != nil {
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestProcessor_RecordsMetrics(t *testing.T) {
	ms := new(mockSynchronizer)
	ms.On("DeleteAsset", mock.Anything, "A1").Return(nil).Once()
	ms.On("DeleteAsset", mock.Anything, "A2").Return(errors.New("engine down")).Once()
	p := NewProcessor(ms, new(mockReindexer), discardLogger())

	success := map[string]string{"type": string(TypeDeleteAsset), "outcome": "success"}
	failure := map[string]string{"type": string(TypeDeleteAsset), "outcome": "failure"}
	duration := map[string]string{"type": string(TypeDeleteAsset)}

	okBefore := counterValue(t, jobsProcessed, success)
	failBefore := counterValue(t, jobsProcessed, failure)
	durBefore := histogramCount(t, jobDuration, duration)

	require.NoError(t, p.Process(context.Background(), &Record{Type: TypeDeleteAsset, Job: DeleteAssetJob{AssetID: "A1"}}, nil))
	require.Error(t, p.Process(context.Background(), &Record{Type: TypeDeleteAsset, Job: DeleteAssetJob{AssetID: "A2"}}, nil))

	assert.Equal(t, okBefore+1, counterValue(t, jobsProcessed, success))
	assert.Equal(t, failBefore+1, counterValue(t, jobsProcessed, failure))
	assert.Equal(t, durBefore+2, histogramCount(t, jobDuration, duration))
	ms.AssertExpectations(t)
}
