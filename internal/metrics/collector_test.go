package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/image"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.generationsTotal)
	assert.NotNil(t, collector.generationDuration)
	assert.NotNil(t, collector.pollAttemptsTotal)
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("dup", reg, nil)

	assert.Panics(t, func() {
		NewCollector("dup", reg, nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordHTTPRequest("POST", "/v1/images/generate", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/v1/images/generate", 200, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/v1/images/generate", 502, 10*time.Millisecond, 512, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/images/generate", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/images/generate", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_ObserveGeneration(t *testing.T) {
	collector := newTestCollector(t)

	collector.ObserveGeneration("flux", "success", 12*time.Second)
	collector.ObserveGeneration("flux", "timed_out", 25*time.Second)
	collector.ObserveGeneration("gemini", "success", 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.generationsTotal.WithLabelValues("flux", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.generationsTotal.WithLabelValues("flux", "timed_out")))
	assert.Equal(t, 3, testutil.CollectAndCount(collector.generationsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.generationDuration))
}

func TestCollector_ObservePollAttempt(t *testing.T) {
	collector := newTestCollector(t)

	collector.ObservePollAttempt("flux", image.JobProcessing)
	collector.ObservePollAttempt("flux", image.JobProcessing)
	collector.ObservePollAttempt("flux", image.JobReady)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.pollAttemptsTotal.WithLabelValues("flux", "processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.pollAttemptsTotal.WithLabelValues("flux", "ready")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 16)
			collector.ObserveGeneration("openai", "success", time.Second)
			collector.ObservePollAttempt("flux", image.JobMalformed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.generationsTotal.WithLabelValues("openai", "success")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.pollAttemptsTotal.WithLabelValues("flux", "malformed")))
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		302: "3xx",
		404: "4xx",
		504: "5xx",
		100: "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code), "status %d", code)
	}
}
