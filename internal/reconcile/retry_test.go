package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFetchBackOffDoublesPerAttempt(t *testing.T) {
	bo := newFetchBackOff(2 * time.Second)
	bo.RandomizationFactor = 0

	assert.Equal(t, 2*time.Second, bo.NextBackOff())
	assert.Equal(t, 4*time.Second, bo.NextBackOff())
	assert.Equal(t, 8*time.Second, bo.NextBackOff())
	assert.Equal(t, 16*time.Second, bo.NextBackOff())
}
