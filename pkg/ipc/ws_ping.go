package ipc

import (
	"context"
	"time"
)

const (
	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

// startWSPing pings conn until ctx ends. onFail runs when a ping times out.
func startWSPing(ctx context.Context, conn pinger, interval time.Duration, onFail func(error)) {
	if conn == nil {
		return
	}
	if interval <= 0 {
		interval = wsPingInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil && ctx.Err() == nil && onFail != nil {
					onFail(err)
					return
				}
			}
		}
	}()
}
