// Resilience operators for rxstream
// 弹性操作符：Retry, RetryWhen, Repeat
// 消费可重复调用的Source工厂，每次尝试都从头构造一个全新的源
package rxstream

import (
	"fmt"
	"sync"
)

// ============================================================================
// 聚合错误
// ============================================================================

// Failure 一次失败尝试捕获的错误与调用栈
type Failure struct {
	Err   error
	Trace string
}

// AggregateError 聚合错误：按发生顺序携带全部失败尝试，
// 调用方可以检查完整的失败历史而不只是最后一次
type AggregateError struct {
	Failures []Failure
}

// Error 实现error接口
func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		return "rxstream: 全部尝试失败"
	}
	return fmt.Sprintf("rxstream: %d次尝试全部失败，最后一次: %v",
		len(e.Failures), e.Failures[len(e.Failures)-1].Err)
}

// Unwrap 返回最后一次失败的底层错误
func (e *AggregateError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

// ============================================================================
// Retry 重试
// ============================================================================

// Retry 订阅factory()并转发数据事件；出错时记录(错误,调用栈)，
// 还有剩余次数（count为负表示不限）则重新调用factory()从头订阅
// 任一次尝试成功完成即正常完成；次数耗尽仍失败时发射一个
// 携带全部失败历史的AggregateError
// count是首次尝试之后允许的重试次数，即最多count+1次订阅尝试
func Retry(factory func() Source, count int) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var failures []Failure
		var current Subscription
		attempts := 0
		cancelled := false

		var attempt func()
		attempt = func() {
			mu.Lock()
			if cancelled {
				mu.Unlock()
				return
			}
			attempts++
			index := attempts
			mu.Unlock()

			sub := factory().Subscribe(func(n Notification) {
				if !n.IsError() {
					observer(n)
					return
				}

				mu.Lock()
				failures = append(failures, Failure{Err: n.Err, Trace: n.Trace})
				exhausted := count >= 0 && len(failures) > count
				captured := append([]Failure(nil), failures...)
				mu.Unlock()

				if exhausted {
					observer(CreateError(&AggregateError{Failures: captured}))
					return
				}
				attempt()
			})

			mu.Lock()
			if !cancelled && index == attempts {
				current = sub
				mu.Unlock()
				return
			}
			mu.Unlock()
			// 该次尝试已同步结束或整体已取消
			sub.Cancel()
		}
		attempt()

		return NewBaseSubscription(func() {
			mu.Lock()
			cancelled = true
			sub := current
			current = nil
			mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
		})
	})
}

// ============================================================================
// RetryWhen 条件重试
// ============================================================================

// RetryWhen 出错时调用notifierFactory(err, trace)获得通知源并订阅：
// 通知源产生的第一个数据事件（值不限）意味着"立即重试"；
// 通知源自身出错时发射包含既往全部失败加通知源错误的聚合错误；
// 通知源在从未发射的情况下完成时整体正常完成，不再重试
// （这是一个刻意保留、容易误用的策略，见包文档）
func RetryWhen(factory func() Source, notifierFactory func(err error, trace string) Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var failures []Failure
		var current Subscription
		var notifier Subscription
		attempts := 0
		cancelled := false

		var attempt func()
		attempt = func() {
			mu.Lock()
			if cancelled {
				mu.Unlock()
				return
			}
			attempts++
			index := attempts
			oldNotifier := notifier
			notifier = nil
			mu.Unlock()
			if oldNotifier != nil {
				oldNotifier.Cancel()
			}

			sub := factory().Subscribe(func(n Notification) {
				if !n.IsError() {
					observer(n)
					return
				}

				mu.Lock()
				failures = append(failures, Failure{Err: n.Err, Trace: n.Trace})
				mu.Unlock()

				signalled := false
				notifierSub := notifierFactory(n.Err, n.Trace).Subscribe(func(signal Notification) {
					mu.Lock()
					if cancelled || signalled {
						mu.Unlock()
						return
					}
					signalled = true
					mu.Unlock()

					switch signal.Kind {
					case KindData:
						// 通知源发话，立即重试
						attempt()
					case KindDone:
						// 通知源从未发射即完成，停止重试并正常完成
						observer(CreateDone())
					case KindError:
						mu.Lock()
						captured := append([]Failure(nil), failures...)
						mu.Unlock()
						captured = append(captured, Failure{Err: signal.Err, Trace: signal.Trace})
						observer(CreateError(&AggregateError{Failures: captured}))
					}
				})

				mu.Lock()
				if !cancelled && !signalled && index == attempts {
					notifier = notifierSub
					mu.Unlock()
					return
				}
				mu.Unlock()
				notifierSub.Cancel()
			})

			mu.Lock()
			if !cancelled && index == attempts {
				current = sub
				mu.Unlock()
				return
			}
			mu.Unlock()
			sub.Cancel()
		}
		attempt()

		return NewBaseSubscription(func() {
			mu.Lock()
			cancelled = true
			sub := current
			notifierSub := notifier
			current = nil
			notifier = nil
			mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
			if notifierSub != nil {
				notifierSub.Cancel()
			}
		})
	})
}

// ============================================================================
// Repeat 重复
// ============================================================================

// Repeat 每次成功完成后无条件重新订阅factory()（错误则立即终止），
// 共运行count次；count不大于0时无限重复
func Repeat(factory func() Source, count int) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var current Subscription
		runs := 0
		generation := 0
		cancelled := false

		var run func()
		run = func() {
			mu.Lock()
			if cancelled {
				mu.Unlock()
				return
			}
			generation++
			index := generation
			mu.Unlock()

			sub := factory().Subscribe(func(n Notification) {
				if !n.IsDone() {
					observer(n)
					return
				}

				mu.Lock()
				runs++
				done := count > 0 && runs >= count
				mu.Unlock()

				if done {
					observer(CreateDone())
					return
				}
				run()
			})

			mu.Lock()
			if !cancelled && index == generation {
				current = sub
				mu.Unlock()
				return
			}
			mu.Unlock()
			sub.Cancel()
		}
		run()

		return NewBaseSubscription(func() {
			mu.Lock()
			cancelled = true
			sub := current
			current = nil
			mu.Unlock()
			if sub != nil {
				sub.Cancel()
			}
		})
	})
}
