package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/planmint/ports"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockers(t *testing.T) map[string]ports.Locker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]ports.Locker{
		"memory": NewMemoryLocker(),
		"redis":  NewRedisLocker(client, time.Minute, logrus.New()),
	}
}

func TestLockerExcludesSameKey(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside atomic.Int32
			var wg sync.WaitGroup

			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "wallet:mint")
					if !assert.NoError(t, err) {
						return
					}
					defer unlock()

					n := inside.Add(1)
					for {
						m := maxInside.Load()
						if n <= m || maxInside.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inside.Add(-1)
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxInside.Load())
		})
	}
}

func TestLockerHonoursContext(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "k")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "k")
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			// other keys are independent
			other, err := l.Lock(context.Background(), "other")
			require.NoError(t, err)
			other()

			unlock()
			unlock()

			again, err := l.Lock(context.Background(), "k")
			require.NoError(t, err)
			again()
		})
	}
}
