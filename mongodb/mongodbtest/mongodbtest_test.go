package mongodbtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDockerHealthDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		err := dockerHealth()
		t.Log("docker health:", err)
	})
}

func TestViperSkipsOnlyTheSubtest(t *testing.T) {
	ran := false
	t.Run("mongo", func(t *testing.T) {
		if dockerHealth() == nil {
			t.Skip("docker is available")
		}
		Viper(t, "mongodbtest")
		t.Error("Viper did not skip")
	})
	t.Run("memory", func(t *testing.T) {
		ran = true
	})
	assert.True(t, ran)
}
