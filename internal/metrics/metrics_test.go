package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.StreamMessages.WithLabelValues("enwiki", "malformed").Inc()
	m.StreamMessages.WithLabelValues("enwiki", "malformed").Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(m.StreamMessages.WithLabelValues("enwiki", "malformed")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// A second instance on another registry must not collide.
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
