package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})

	NewTimer().ObserveDuration(histogram)
	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "test_duration_vec_seconds",
			Help: "Test duration histogram vec",
		},
		[]string{"operation"},
	)

	NewTimer().ObserveDurationVec(histogramVec, "write")
	NewTimer().ObserveDurationVec(histogramVec, "clear")
	assert.Equal(t, 2, testutil.CollectAndCount(histogramVec))
}

type fakeSource struct {
	events     int
	err        error
	watchers   int
	processors int
}

func (f *fakeSource) CountEvents() (int, error) { return f.events, f.err }
func (f *fakeSource) WatcherCount() int         { return f.watchers }
func (f *fakeSource) ProcessorCount() int       { return f.processors }

func TestCollector_Collect(t *testing.T) {
	resetHealth(t)

	c := NewCollector(&fakeSource{events: 7, watchers: 2, processors: 3}, 0)
	assert.Equal(t, 15*time.Second, c.interval)
	c.collect()

	assert.Equal(t, float64(7), testutil.ToFloat64(StoredEvents))
	assert.Equal(t, float64(2), testutil.ToFloat64(WatchersTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(ProcessorsTotal))

	c = NewCollector(&fakeSource{err: errors.New("database not open"), watchers: 1}, time.Minute)
	c.collect()
	assert.Equal(t, float64(7), testutil.ToFloat64(StoredEvents), "failed count keeps the last value")
	assert.Equal(t, float64(1), testutil.ToFloat64(WatchersTotal))
}

func TestCollector_LeavesStorageHealthToOwner(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentStorage, false, "failed to append event")
	NewCollector(&fakeSource{events: 1}, time.Minute).collect()
	assert.False(t, healthChecker.components[ComponentStorage].Healthy)

	UpdateComponent(ComponentStorage, true, "")
	NewCollector(&fakeSource{err: errors.New("database not open")}, time.Minute).collect()
	assert.True(t, healthChecker.components[ComponentStorage].Healthy)
}
