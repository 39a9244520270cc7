package ipc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingPinger struct {
	pings atomic.Int32
	err   error
}

func (p *countingPinger) Ping(ctx context.Context) error {
	p.pings.Add(1)
	return p.err
}

func TestStartWSPingNilConn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWSPing(ctx, nil, time.Millisecond, nil)
}

func TestStartWSPingPingsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &countingPinger{}
	startWSPing(ctx, p, time.Millisecond, nil)

	assert.Eventually(t, func() bool { return p.pings.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
}

func TestStartWSPingReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &countingPinger{err: errors.New("pong timeout")}
	failed := make(chan error, 1)
	startWSPing(ctx, p, time.Millisecond, func(err error) { failed <- err })

	select {
	case err := <-failed:
		assert.EqualError(t, err, "pong timeout")
	case <-time.After(time.Second):
		t.Fatal("ping failure not reported")
	}
}

func TestWSPingConstants(t *testing.T) {
	assert.GreaterOrEqual(t, wsPingInterval, 10*time.Second)
	assert.GreaterOrEqual(t, wsPingTimeout, time.Second)
	assert.Less(t, wsPingTimeout, wsPingInterval)
}
