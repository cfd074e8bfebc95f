package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestObserveQueryCountsByResult(t *testing.T) {
	before := testutil.ToFloat64(queryExecutions.WithLabelValues(KindWrite, Failed))
	ObserveQuery(KindWrite, errors.New("boom"), time.Millisecond)
	ObserveQuery(KindWrite, nil, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(queryExecutions.WithLabelValues(KindWrite, Failed)))
}

func TestSecurityCounterThreadSafety(t *testing.T) {
	var wg sync.WaitGroup
	before := testutil.ToFloat64(CounterForSecurityEvent("sqli"))
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			CounterForSecurityEvent("sqli").Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, before+100, testutil.ToFloat64(CounterForSecurityEvent("sqli")))
}
