// FILE: siphon/src/internal/shutdown/coordinator_test.go
package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

func TestRegister_DuplicateFails(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	h, err := c.Register("src-1")
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = c.Register("src-1")
	assert.Error(t, err)
}

func TestRegister_ReuseAfterShutdown(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	h, err := c.Register("src-1")
	require.NoError(t, err)

	go func() {
		<-h.Signal()
		h.Ack()
	}()
	assert.True(t, c.ShutdownSource("src-1", time.Now().Add(time.Second)))

	// Identifier is free again once the previous task acknowledged.
	_, err = c.Register("src-1")
	assert.NoError(t, err)
}

func TestDeregister_FreesIdentifier(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	_, err := c.Register("src-1")
	require.NoError(t, err)

	c.Deregister("src-1")

	_, err = c.Register("src-1")
	assert.NoError(t, err)
}

func TestShutdownSource_AckBeforeDeadline(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	h, err := c.Register("src-1")
	require.NoError(t, err)

	go func() {
		<-h.Signal()
		h.Ack()
	}()

	assert.True(t, c.ShutdownSource("src-1", time.Now().Add(time.Second)))
}

func TestShutdownSource_Timeout(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	_, err := c.Register("src-1")
	require.NoError(t, err)

	// The task never acks.
	assert.False(t, c.ShutdownSource("src-1", time.Now().Add(50*time.Millisecond)))
}

func TestShutdownSource_UnknownReturnsTrue(t *testing.T) {
	c := NewCoordinator(newTestLogger())
	assert.True(t, c.ShutdownSource("never-registered", time.Now().Add(time.Second)))
}

func TestShutdownSource_IdempotentAfterAck(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	h, err := c.Register("src-1")
	require.NoError(t, err)

	go func() {
		<-h.Signal()
		h.Ack()
	}()
	require.True(t, c.ShutdownSource("src-1", time.Now().Add(time.Second)))

	// Repeat calls after a clean stop remain true and return promptly.
	assert.True(t, c.ShutdownSource("src-1", time.Now().Add(10*time.Millisecond)))
}

func TestShutdownSource_DistinctSourcesDoNotBlock(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	_, err := c.Register("stuck")
	require.NoError(t, err)

	fast, err := c.Register("fast")
	require.NoError(t, err)
	go func() {
		<-fast.Signal()
		fast.Ack()
	}()

	var wg sync.WaitGroup
	results := make(map[string]bool)
	var mu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		ok := c.ShutdownSource("stuck", time.Now().Add(300*time.Millisecond))
		mu.Lock()
		results["stuck"] = ok
		mu.Unlock()
	}()

	fastDone := make(chan time.Duration, 1)
	go func() {
		defer wg.Done()
		start := time.Now()
		ok := c.ShutdownSource("fast", time.Now().Add(300*time.Millisecond))
		fastDone <- time.Since(start)
		mu.Lock()
		results["fast"] = ok
		mu.Unlock()
	}()

	elapsed := <-fastDone
	wg.Wait()

	assert.True(t, results["fast"])
	assert.False(t, results["stuck"])
	// The fast source must not have waited on the stuck one.
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestAck_MultipleCallsSafe(t *testing.T) {
	c := NewCoordinator(newTestLogger())

	h, err := c.Register("src-1")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		h.Ack()
		h.Ack()
	})

	assert.True(t, c.ShutdownSource("src-1", time.Now().Add(time.Second)))
}
