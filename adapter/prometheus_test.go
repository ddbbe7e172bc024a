package adapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Metric) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}

type PrometheusObserverTestSuite struct {
	suite.Suite
	o *PrometheusObserver
	c *ebr.Collector
}

func (s *PrometheusObserverTestSuite) SetupTest() {
	s.o = NewPrometheusObserver("test")
	c, err := ebr.New(&ebr.Config{Name: "test", Observer: s.o})
	s.Require().NoError(err)
	s.c = c
}

func (s *PrometheusObserverTestSuite) TestTracksCollector() {
	p := s.c.Join()
	s.Equal(1.0, gaugeValue(s.o.participantG))

	p.Protected(func() {
		p.DeferFunc(func() {})
		p.DeferFunc(func() {})
	})
	s.Equal(2.0, counterValue(s.o.deferred))
	s.Equal(2.0, gaugeValue(s.o.pendingG))

	_, _ = s.c.Collect()
	_, _ = s.c.Collect()
	s.Equal(2.0, counterValue(s.o.collections.WithLabelValues("advanced")))
	s.Equal(2.0, counterValue(s.o.ran))
	s.Equal(0.0, gaugeValue(s.o.pendingG))
	s.Equal(2.0, gaugeValue(s.o.generationG))

	p.Enter()
	_, _ = s.c.Collect()
	_, _ = s.c.Collect()
	p.Exit()
	s.Equal(1.0, counterValue(s.o.collections.WithLabelValues("blocked")))

	p.Leave()
	s.Equal(0.0, gaugeValue(s.o.participantG))
}

func (s *PrometheusObserverTestSuite) TestCountsTaskFailures() {
	p := s.c.Join()
	defer p.Leave()
	ebr.SetLogLevel(5)
	defer ebr.SetLogLevel(3)

	p.Protected(func() {
		p.DeferFunc(func() { panic("one") })
		p.DeferFunc(func() {})
		p.DeferFunc(func() { panic("two") })
	})
	_, _ = s.c.Collect()
	_, err := s.c.Collect()
	s.Error(err)
	s.Equal(2.0, counterValue(s.o.failures))
	s.Equal(3.0, counterValue(s.o.ran))
}

func (s *PrometheusObserverTestSuite) TestRegister() {
	reg := prometheus.NewPedanticRegistry()
	s.Require().NoError(s.o.Register(reg))

	_, _ = s.c.Collect()
	families, err := reg.Gather()
	s.Require().NoError(err)

	names := map[string]*dto.MetricFamily{}
	for _, f := range families {
		names[f.GetName()] = f
	}
	s.Contains(names, "ebr_collections_total")
	s.Contains(names, "ebr_collect_duration_seconds")
	s.Contains(names, "ebr_epoch_generation")

	h := names["ebr_collect_duration_seconds"].GetMetric()[0]
	s.Equal(uint64(1), h.GetHistogram().GetSampleCount())
	s.Equal("collector", h.GetLabel()[0].GetName())
	s.Equal("test", h.GetLabel()[0].GetValue())

	s.Error(s.o.Register(reg), "second registration must collide")
}

func TestPrometheusObserverTestSuite(t *testing.T) {
	suite.Run(t, new(PrometheusObserverTestSuite))
}

func TestTaskFailures(t *testing.T) {
	perr := &ebr.TaskPanicError{Value: "x"}
	assert.Equal(t, 0, taskFailures(nil))
	assert.Equal(t, 1, taskFailures(perr))
	assert.Equal(t, 2, taskFailures(errors.Join(perr, errors.New("other"), perr)))
	assert.Equal(t, 1, taskFailures(fmt.Errorf("wrapped: %w", perr)))
	assert.Equal(t, 0, taskFailures(errors.New("other")))
}

func TestPrometheusObserverBlockedResult(t *testing.T) {
	o := NewPrometheusObserver("manual")
	o.CollectDone(time.Now(), ebr.Collection{Lagging: 1, Pending: 4}, nil)
	require.Equal(t, 1.0, counterValue(o.collections.WithLabelValues("blocked")))
	assert.Equal(t, 4.0, gaugeValue(o.pendingG))
}

func TestPrometheusGaugesFollowCollector(t *testing.T) {
	o := NewPrometheusObserver("bound")
	c, err := ebr.New(&ebr.Config{Name: "bound", Observer: o})
	require.NoError(t, err)

	p := c.Join()
	p.Protected(func() {
		p.DeferFunc(func() {})
		p.DeferFunc(func() {})
	})
	_, _ = c.Collect()
	_, _ = c.Collect()
	require.Equal(t, 0, c.Pending())

	// A notification that lost the race with the collection reports a count
	// the collector has already drained.
	o.TaskDeferred(0, 2)
	o.ParticipantsChanged(5)
	assert.Equal(t, 3.0, counterValue(o.deferred))
	assert.Equal(t, 0.0, gaugeValue(o.pendingG))
	assert.Equal(t, 1.0, gaugeValue(o.participantG))
	assert.Equal(t, 2.0, gaugeValue(o.generationG))

	p.Leave()
	assert.Equal(t, 0.0, gaugeValue(o.participantG))
}
