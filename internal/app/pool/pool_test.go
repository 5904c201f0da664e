package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_OrderedAndComplete(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var calls atomic.Int64
	rs := Map(context.Background(), items, 8, func(_ context.Context, v int) (int, error) {
		calls.Add(1)
		return v * 2, nil
	})

	if calls.Load() != int64(len(items)) {
		t.Fatalf("期望每个条目处理一次：calls=%d", calls.Load())
	}
	for i, r := range rs {
		if !r.OK() || r.Value != i*2 {
			t.Fatalf("结果 %d 不正确：%+v", i, r)
		}
	}
}

func TestMap_BoundedConcurrency(t *testing.T) {
	items := make([]int, 32)
	var active, peak atomic.Int64

	Map(context.Background(), items, 3, func(_ context.Context, _ int) (struct{}, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return struct{}{}, nil
	})

	if peak.Load() > 3 {
		t.Fatalf("并发超出上限：peak=%d", peak.Load())
	}
}

func TestMap_FailureAndPanicAreIsolated(t *testing.T) {
	boom := errors.New("boom")
	rs := Map(context.Background(), []int{0, 1, 2, 3}, 2, func(_ context.Context, v int) (int, error) {
		switch v {
		case 1:
			return 0, boom
		case 2:
			panic("bad item")
		}
		return v, nil
	})

	if !rs[0].OK() || !rs[3].OK() {
		t.Fatalf("其他条目不应受影响：%+v", rs)
	}
	if !errors.Is(rs[1].Err, boom) {
		t.Fatalf("期望 boom，实际 %v", rs[1].Err)
	}
	var pe *PanicError
	if !errors.As(rs[2].Err, &pe) {
		t.Fatalf("期望 PanicError，实际 %T %v", rs[2].Err, rs[2].Err)
	}
}

func TestMap_CanceledContextStartsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	errs := Each(ctx, []int{1, 2, 3}, 2, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})

	if calls.Load() != 0 {
		t.Fatalf("ctx 已取消时不应启动条目：calls=%d", calls.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("条目 %d 期望 context.Canceled，实际 %v", i, err)
		}
	}
}
