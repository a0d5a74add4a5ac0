// internal/health/health_test.go
package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func policy() Policy {
	return Policy{FailThreshold: 3, Cooldown: 30 * time.Second}
}

func TestThreeFailuresGoOffline(t *testing.T) {
	p := policy()
	d := &Device{ID: 1, Name: "pmp1"}

	_, edge := p.Fail(d, t0, CodeDevice, "timeout")
	assert.False(t, edge)
	_, edge = p.Fail(d, t0.Add(time.Second), CodeDevice, "timeout")
	assert.False(t, edge)
	assert.Equal(t, Online, d.State)

	tr, edge := p.Fail(d, t0.Add(2*time.Second), CodeDevice, "timeout")
	require.True(t, edge)
	assert.Equal(t, Offline, d.State)
	assert.Equal(t, Online, tr.From)
	assert.Equal(t, Offline, tr.To)
	assert.Equal(t, "timeout", tr.Reason)
	assert.Equal(t, t0.Add(32*time.Second), d.DisabledUntil)
	assert.Equal(t, 3, d.FailCount)
}

func TestSuccessResetsFailCount(t *testing.T) {
	for fails := 1; fails <= 2; fails++ {
		p := policy()
		d := &Device{ID: 1, Name: "pmp1"}

		for i := 0; i < fails; i++ {
			p.Fail(d, t0, CodeDevice, "timeout")
		}

		_, edge := p.Succeed(d, t0.Add(time.Second))
		assert.False(t, edge)
		assert.Equal(t, 0, d.FailCount)
		assert.Equal(t, Online, d.State)
		assert.Equal(t, t0.Add(time.Second), d.LastOK)
	}
}

func TestOfflineEdgeOnlyOnce(t *testing.T) {
	p := policy()
	d := &Device{ID: 1, Name: "pmp1"}

	edges := 0
	for i := 0; i < 6; i++ {
		if _, edge := p.Fail(d, t0.Add(time.Duration(i)*time.Minute), CodeDevice, "timeout"); edge {
			edges++
		}
	}

	assert.Equal(t, 1, edges)
	// each failure while OFFLINE re-arms the cooldown
	assert.Equal(t, t0.Add(5*time.Minute+30*time.Second), d.DisabledUntil)
}

func TestCooldown(t *testing.T) {
	p := policy()
	d := &Device{ID: 1, Name: "pmp1"}
	assert.True(t, p.Due(d, t0))

	for i := 0; i < 3; i++ {
		p.Fail(d, t0, CodeDevice, "timeout")
	}

	assert.False(t, p.Due(d, t0))
	assert.False(t, p.Due(d, t0.Add(29*time.Second)))
	assert.True(t, p.Due(d, t0.Add(30*time.Second)))
	assert.True(t, p.Due(d, t0.Add(31*time.Second)))
}

func TestRecoveryEdge(t *testing.T) {
	p := policy()
	d := &Device{ID: 1, Name: "pmp1", Label: "PMP 1 INTAKE"}
	for i := 0; i < 3; i++ {
		p.Fail(d, t0, CodeAllFailed, "all parameters error")
	}

	tr, edge := p.Succeed(d, t0.Add(time.Minute))
	require.True(t, edge)
	assert.Equal(t, Offline, tr.From)
	assert.Equal(t, Online, tr.To)
	assert.Equal(t, "PMP 1 INTAKE", tr.Label)
	assert.True(t, d.DisabledUntil.IsZero())
	assert.Equal(t, CodeNone, d.LastErrorCode)
}

func TestPolicyNormalized(t *testing.T) {
	p := Policy{}.Normalized()
	assert.Equal(t, DefaultFailThreshold, p.FailThreshold)
	assert.Equal(t, DefaultCooldown, p.Cooldown)

	p = Policy{FailThreshold: 5, Cooldown: time.Second}.Normalized()
	assert.Equal(t, 5, p.FailThreshold)
	assert.Equal(t, time.Second, p.Cooldown)
}
