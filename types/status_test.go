package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Order(t *testing.T) {
	ordered := []Status{StatusHealthy, StatusDegraded, StatusUnhealthy, StatusError}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Severity(), ordered[i-1].Severity())
		assert.True(t, ordered[i].AtLeast(ordered[i-1]))
	}
	assert.Equal(t, -1, StatusUnknown.Severity())
	assert.False(t, StatusUnknown.IsKnown())
}

func TestMaxStatus(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{StatusHealthy, StatusDegraded, StatusDegraded},
		{StatusError, StatusUnhealthy, StatusError},
		{StatusUnknown, StatusHealthy, StatusHealthy},
		{StatusDegraded, StatusUnknown, StatusDegraded},
		{StatusUnknown, StatusUnknown, StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxStatus(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
		assert.Equal(t, tt.want, MaxStatus(tt.b, tt.a), "%s vs %s", tt.b, tt.a)
	}
}

func TestQuality_RetriesAndSkips(t *testing.T) {
	assert.Equal(t, 3, QualityFull.MaxRetries(3))
	assert.Equal(t, 1, QualityReduced.MaxRetries(3))
	assert.Equal(t, 0, QualityReduced.MaxRetries(0))
	assert.Equal(t, 0, QualityMinimal.MaxRetries(3))

	assert.False(t, QualityReduced.Skips(true))
	assert.True(t, QualityMinimal.Skips(true))
	assert.False(t, QualityMinimal.Skips(false))
	assert.True(t, QualityHalted.Skips(false))
	assert.Equal(t, "reduced", QualityReduced.String())
}

func TestOutcome_TypeSwitch(t *testing.T) {
	outcomes := []Outcome{
		&Success{TokensUsed: 1},
		&Escalate{TokensUsed: 2},
		&Failure{Kind: FailureTransient, TokensUsed: 3},
	}
	var total int64
	for _, o := range outcomes {
		switch o.(type) {
		case *Success, *Escalate, *Failure:
			total += o.Tokens()
		default:
			t.Fatalf("unexpected outcome %T", o)
		}
	}
	assert.Equal(t, int64(6), total)
	assert.Equal(t, 1.0, (&Success{}).EffectiveConfidence())
	assert.Equal(t, 0.52, (&Success{Confidence: 0.52}).EffectiveConfidence())
}

func TestMeter_SealRejectsLateTokens(t *testing.T) {
	m := &Meter{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Add(2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), m.Seal())
	assert.False(t, m.Add(10))
	assert.Equal(t, int64(100), m.Value())

	var nilMeter *Meter
	assert.False(t, nilMeter.Add(1))
	assert.Equal(t, int64(0), nilMeter.Seal())
}
