package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Result 是单个条目的处理结果：要么 Value 有效，要么 Err 非空。
type Result[R any] struct {
	Value R
	Err   error
}

func (r Result[R]) OK() bool { return r.Err == nil }

// PanicError 表示 worker 函数在某个条目上 panic（被转换为该条目的失败）。
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("worker panic: %v", e.Value) }

// Map 在有界并发下把 fn 应用到每个 items 上，返回与 items 下标一一对应的结果。
//
// 约束：
// - 每个条目恰好处理一次；单条失败（含 panic）只影响自己
// - 返回时所有 worker 均已结束（同步屏障），调用方不会看到部分结果
// - ctx 取消后不再启动新条目，未启动条目的 Err 为 ctx.Err()
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) (R, error)) []Result[R] {
	out := make([]Result[R], len(items))
	if len(items) == 0 {
		return out
	}
	if workers < 1 {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for i := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(items); j++ {
				out[j].Err = err
			}
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			out[i] = call(ctx, items[i], fn)
		}(i)
	}

	wg.Wait()
	return out
}

// Each 与 Map 相同，但 fn 没有返回值；结果是与 items 对齐的 error 切片。
func Each[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) error) []error {
	rs := Map(ctx, items, workers, func(ctx context.Context, it T) (struct{}, error) {
		return struct{}{}, fn(ctx, it)
	})
	errs := make([]error, len(rs))
	for i := range rs {
		errs[i] = rs[i].Err
	}
	return errs
}

func call[T, R any](ctx context.Context, it T, fn func(context.Context, T) (R, error)) (res Result[R]) {
	defer func() {
		if v := recover(); v != nil {
			res = Result[R]{Err: &PanicError{Value: v}}
		}
	}()
	v, err := fn(ctx, it)
	return Result[R]{Value: v, Err: err}
}
