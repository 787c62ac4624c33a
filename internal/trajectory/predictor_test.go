package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/groundctl/internal/kinematics"
	"github.com/itohio/groundctl/internal/physical"
)

func model() kinematics.Differential {
	return kinematics.NewDifferential(0.05, 0.3)
}

func TestStaticTargetTerminatesImmediately(t *testing.T) {
	p := New(model(), physical.Physical{Speed: 0, Rudder: 0})
	p.Target = physical.Physical{Speed: 0, Rudder: 0}

	_, _, ok := p.Next()
	assert.False(t, ok)
}

func TestCruiseContinuesPastRudderConvergence(t *testing.T) {
	p := New(model(), physical.Physical{Speed: 0.5, Rudder: 0})
	p.Target = physical.Physical{Speed: 0.5, Rudder: 0}

	steps := 0
	for {
		_, _, ok := p.Next()
		if !ok {
			break
		}
		steps++
		if steps > 100 {
			break
		}
	}
	assert.Equal(t, 101, steps, "cruise should not self-terminate; caller bounds iteration")
}

func TestReleasedTargetTerminates(t *testing.T) {
	p := New(model(), physical.Physical{Speed: 0, Rudder: 0})
	p.Target = physical.Released

	_, _, ok := p.Next()
	assert.False(t, ok)
}

func TestClonesAreIndependent(t *testing.T) {
	p := New(model(), physical.Physical{Speed: 1, Rudder: 0})
	p.Target = physical.Physical{Speed: 1, Rudder: 0.5}

	_, _, ok := p.Next()
	require.True(t, ok)

	clone := p.Clone()
	_, _, ok = p.Next()
	require.True(t, ok)

	assert.NotEqual(t, p.Current.Rudder, clone.Current.Rudder)
}
