// Factory functions for rxstream
// 工厂函数：构造各类冷源，同步冷源在订阅goroutine上直接投递
package rxstream

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// ============================================================================
// 基础工厂函数
// ============================================================================

// Just 从给定的值创建冷源，订阅时依次发射后完成
func Just(values ...interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		for _, value := range values {
			observer(CreateData(value))
		}
		observer(CreateDone())
		return NewBaseSubscription(nil)
	})
}

// Empty 创建一个不发射任何值、立即完成的冷源
func Empty() Source {
	return NewSource(func(observer Observer) Subscription {
		observer(CreateDone())
		return NewBaseSubscription(nil)
	})
}

// Never 创建一个永不发射任何事件的冷源
func Never() Source {
	return NewSource(func(observer Observer) Subscription {
		return NewBaseSubscription(nil)
	})
}

// Error 创建一个立即发射错误的冷源
func Error(err error) Source {
	return NewSource(func(observer Observer) Subscription {
		observer(CreateError(err))
		return NewBaseSubscription(nil)
	})
}

// ErrorTrace 创建一个立即发射带调用栈错误的冷源
func ErrorTrace(err error, trace string) Source {
	return NewSource(func(observer Observer) Subscription {
		observer(CreateErrorTrace(err, trace))
		return NewBaseSubscription(nil)
	})
}

// Range 创建发射[start, start+count)整数序列的冷源
func Range(start, count int) Source {
	return NewSource(func(observer Observer) Subscription {
		for i := 0; i < count; i++ {
			observer(CreateData(start + i))
		}
		observer(CreateDone())
		return NewBaseSubscription(nil)
	})
}

// ============================================================================
// 从数据源创建
// ============================================================================

// FromSlice 从切片创建冷源
func FromSlice(slice []interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		for _, value := range slice {
			observer(CreateData(value))
		}
		observer(CreateDone())
		return NewBaseSubscription(nil)
	})
}

// FromChannel 从Go channel创建冷源，channel关闭时完成
// 事件在独立goroutine上投递，投递门控负责串行化
func FromChannel(ch <-chan interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		stop := make(chan struct{})
		go func() {
			for {
				select {
				case <-stop:
					return
				case value, ok := <-ch:
					if !ok {
						observer(CreateDone())
						return
					}
					observer(CreateData(value))
				}
			}
		}()

		return NewBaseSubscription(func() {
			close(stop)
		})
	})
}

// Defer 延迟工厂：每次订阅时重新调用factory构造一个新源
// 副作用工厂因此对每次独立订阅各执行一次
func Defer(factory func() Source) Source {
	return NewSource(func(observer Observer) Subscription {
		return factory().Subscribe(observer)
	})
}

// ============================================================================
// 时间相关工厂
// ============================================================================

// Interval 创建按固定周期发射递增int64序列的冷源，永不完成
func Interval(period time.Duration, clk Clock) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var timer clockz.Timer
		cancelled := false
		var count int64

		var schedule func()
		schedule = func() {
			mu.Lock()
			if cancelled {
				mu.Unlock()
				return
			}
			timer = clk.AfterFunc(period, func() {
				mu.Lock()
				if cancelled {
					mu.Unlock()
					return
				}
				sequence := count
				count++
				mu.Unlock()

				observer(CreateData(sequence))
				schedule()
			})
			mu.Unlock()
		}
		schedule()

		return NewBaseSubscription(func() {
			mu.Lock()
			cancelled = true
			pending := timer
			mu.Unlock()
			if pending != nil {
				pending.Stop()
			}
		})
	})
}

// Timer 创建在delay之后发射单个值并完成的冷源
func Timer(value interface{}, delay time.Duration, clk Clock) Source {
	return NewSource(func(observer Observer) Subscription {
		timer := clk.AfterFunc(delay, func() {
			observer(CreateData(value))
			observer(CreateDone())
		})

		return NewBaseSubscription(func() {
			timer.Stop()
		})
	})
}
