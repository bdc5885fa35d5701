package circuit_breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tazhibaev/lending-service/pkg/circuit_breaker"
)

func Test_circuitBreaker_Call(t *testing.T) {
	errService := errors.New("service error")
	failing := func() error { return errService }
	ok := func() error { return nil }

	cb := circuit_breaker.New(10, 200*time.Millisecond, 0.30, 3)

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Call(ok))
	}

	// enough failures in the tail to open the breaker
	for i := 0; i < 4; i++ {
		err := cb.Call(failing)
		if !errors.Is(err, circuit_breaker.ErrOpenCB) {
			require.ErrorIs(t, err, errService)
		}
	}
	require.ErrorIs(t, cb.Call(ok), circuit_breaker.ErrOpenCB)

	// after the timeout the breaker probes in half-open and recovers
	time.Sleep(250 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, cb.Call(ok))
	}
	require.NoError(t, cb.Call(ok))

	// fresh failures reopen the breaker
	for i := 0; i < 4; i++ {
		_ = cb.Call(failing)
	}
	require.ErrorIs(t, cb.Call(ok), circuit_breaker.ErrOpenCB)

	cb.Reset()
	require.NoError(t, cb.Call(ok))
}
