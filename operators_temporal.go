// Temporal operators for rxstream
// 时序操作符：Debounce, Throttle, Buffer系列, Sample, Paced, TimeInterval, Timestamp
// 时间一律经由注入的Clock产生，窗口与触发器统一表示为Source
package rxstream

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// ============================================================================
// Debounce 防抖
// ============================================================================

// Debounce 每个数据事件到来时取消上一个窗口订阅，存下新值并订阅windowFactory(value)，
// 窗口发出第一个事件时发射所存的值
// 源完成时若仍有挂起值则立即冲洗再完成
func Debounce(source Source, windowFactory func(value interface{}) Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var pending interface{}
		hasPending := false
		finished := false
		generation := 0
		window := NewSerialSubscription()
		subs := NewCompositeSubscription()

		subs.Add(source.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				mu.Unlock()
				observer(n)
				subs.Cancel()
			case KindDone:
				finished = true
				flush := hasPending
				value := pending
				mu.Unlock()
				if flush {
					observer(CreateData(value))
				}
				observer(CreateDone())
				subs.Cancel()
			case KindData:
				generation++
				current := generation
				pending = n.Value
				hasPending = true
				mu.Unlock()

				sub := windowFactory(n.Value).Subscribe(func(Notification) {
					// 窗口的第一个事件触发发射，种类不限
					mu.Lock()
					if finished || current != generation || !hasPending {
						mu.Unlock()
						return
					}
					value := pending
					hasPending = false
					mu.Unlock()
					observer(CreateData(value))
					window.Clear()
				})

				mu.Lock()
				stale := finished || current != generation
				mu.Unlock()
				if stale {
					sub.Cancel()
					return
				}
				// 替换时上一个窗口被同步取消
				window.Set(sub)
			}
		}))

		subs.Add(window)
		return subs
	})
}

// DebounceTime 以固定时长为窗口的Debounce
func DebounceTime(source Source, duration time.Duration, clk Clock) Source {
	return Debounce(source, func(interface{}) Source {
		return Timer(int64(0), duration, clk)
	})
}

// ============================================================================
// Throttle 节流
// ============================================================================

// Throttle 第一个数据事件（或窗口关闭后的第一个）立即发射并通过windowFactory(value)开窗，
// 窗口期间到来的值被吞掉；trailing时保留窗口内最近被吞的值，
// 窗口关闭时若有保留值则发射它并以它重新开窗
// 源完成时冲洗trailing保留值后完成
func Throttle(source Source, windowFactory func(value interface{}) Source, trailing bool) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var pending interface{}
		hasPending := false
		windowOpen := false
		finished := false
		generation := 0
		window := NewSerialSubscription()
		subs := NewCompositeSubscription()

		var openWindow func(value interface{})
		openWindow = func(value interface{}) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			generation++
			current := generation
			windowOpen = true
			mu.Unlock()

			sub := windowFactory(value).Subscribe(func(Notification) {
				// 窗口的第一个事件即关窗
				mu.Lock()
				if finished || current != generation {
					mu.Unlock()
					return
				}
				windowOpen = false
				if trailing && hasPending {
					next := pending
					hasPending = false
					mu.Unlock()
					observer(CreateData(next))
					openWindow(next)
					return
				}
				mu.Unlock()
				window.Clear()
			})

			mu.Lock()
			stale := finished || current != generation
			mu.Unlock()
			if stale {
				sub.Cancel()
				return
			}
			window.Set(sub)
		}

		subs.Add(source.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				mu.Unlock()
				observer(n)
				subs.Cancel()
			case KindDone:
				finished = true
				flush := trailing && hasPending
				value := pending
				mu.Unlock()
				if flush {
					observer(CreateData(value))
				}
				observer(CreateDone())
				subs.Cancel()
			case KindData:
				if windowOpen {
					if trailing {
						pending = n.Value
						hasPending = true
					}
					mu.Unlock()
					return
				}
				mu.Unlock()
				observer(CreateData(n.Value))
				openWindow(n.Value)
			}
		}))

		subs.Add(window)
		return subs
	})
}

// ThrottleTime 以固定时长为窗口的Throttle
func ThrottleTime(source Source, duration time.Duration, clk Clock, trailing bool) Source {
	return Throttle(source, func(interface{}) Source {
		return Timer(int64(0), duration, clk)
	}, trailing)
}

// ============================================================================
// Buffer 批次
// ============================================================================

// Buffer 把每个数据事件累积到挂起列表，trigger每发出一个数据事件就把挂起列表
// 作为一批发射并重新开始（触发时列表为空则发射空批）
// 源完成时先发射非空的挂起批次再完成
func Buffer(source Source, trigger Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		items := make([]interface{}, 0)
		finished := false
		subs := NewCompositeSubscription()

		subs.Add(trigger.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				mu.Unlock()
				observer(n)
				subs.Cancel()
			case KindDone:
				// 触发器完成后不再产生批次，源继续照常终止
				mu.Unlock()
			case KindData:
				batch := items
				items = make([]interface{}, 0)
				mu.Unlock()
				observer(CreateData(batch))
			}
		}))

		subs.Add(source.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				mu.Unlock()
				observer(n)
				subs.Cancel()
			case KindDone:
				finished = true
				batch := items
				items = nil
				mu.Unlock()
				if len(batch) > 0 {
					observer(CreateData(batch))
				}
				observer(CreateDone())
				subs.Cancel()
			case KindData:
				items = append(items, n.Value)
				mu.Unlock()
			}
		}))

		return subs
	})
}

// BufferTime 以固定周期为触发器的Buffer
func BufferTime(source Source, timespan time.Duration, clk Clock) Source {
	return Buffer(source, Interval(timespan, clk))
}

// BufferTest 每个值入批后立即用predicate检验，返回true时把当前批发射并重新开始
// 源完成时先发射非空的挂起批次再完成
func BufferTest(source Source, predicate func(value interface{}) bool) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		items := make([]interface{}, 0)

		return source.Subscribe(func(n Notification) {
			switch n.Kind {
			case KindError:
				observer(n)
			case KindDone:
				mu.Lock()
				batch := items
				items = nil
				mu.Unlock()
				if len(batch) > 0 {
					observer(CreateData(batch))
				}
				observer(CreateDone())
			case KindData:
				mu.Lock()
				items = append(items, n.Value)
				flush := predicate(n.Value)
				var batch []interface{}
				if flush {
					batch = items
					items = make([]interface{}, 0)
				}
				mu.Unlock()
				if flush {
					observer(CreateData(batch))
				}
			}
		})
	})
}

// BufferCount 维护可重叠的计数批次：每startEvery个元素开始一个新批
// （startEvery不大于0时取count，即不重叠），批次达到count个元素时发射并移除
// 源完成时按开始顺序冲洗非空的不完整批次
func BufferCount(source Source, count, startEvery int) Source {
	if count < 1 {
		count = 1
	}
	if startEvery < 1 {
		startEvery = count
	}
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var open [][]interface{}
		seen := 0

		return source.Subscribe(func(n Notification) {
			switch n.Kind {
			case KindError:
				observer(n)
			case KindDone:
				mu.Lock()
				remaining := open
				open = nil
				mu.Unlock()
				for _, batch := range remaining {
					if len(batch) > 0 {
						observer(CreateData(batch))
					}
				}
				observer(CreateDone())
			case KindData:
				mu.Lock()
				if seen%startEvery == 0 {
					open = append(open, make([]interface{}, 0, count))
				}
				seen++
				for i := range open {
					open[i] = append(open[i], n.Value)
				}
				var full [][]interface{}
				// 最早开始的批次最先填满
				for len(open) > 0 && len(open[0]) == count {
					full = append(full, open[0])
					open = open[1:]
				}
				mu.Unlock()
				for _, batch := range full {
					observer(CreateData(batch))
				}
			}
		})
	})
}

// ============================================================================
// Sample 采样
// ============================================================================

// Sample 保存源最近的数据值，trigger每发射一次就发射这个最近值
// （上次触发以来没有新数据时不发射）；数据尚未到来时触发不产生输出
func Sample(source Source, trigger Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var latest interface{}
		dirty := false
		finished := false
		subs := NewCompositeSubscription()

		subs.Add(trigger.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				mu.Unlock()
				observer(n)
				subs.Cancel()
			case KindDone:
				// 触发器完成后不再采样
				mu.Unlock()
			case KindData:
				if !dirty {
					mu.Unlock()
					return
				}
				value := latest
				dirty = false
				mu.Unlock()
				observer(CreateData(value))
			}
		}))

		subs.Add(source.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				mu.Unlock()
				observer(n)
				subs.Cancel()
			case KindDone:
				finished = true
				mu.Unlock()
				observer(CreateDone())
				subs.Cancel()
			case KindData:
				latest = n.Value
				dirty = true
				mu.Unlock()
			}
		}))

		return subs
	})
}

// SampleTime 以固定周期为触发器的Sample
func SampleTime(source Source, period time.Duration, clk Clock) Source {
	return Sample(source, Interval(period, clk))
}

// ============================================================================
// Paced / TimeInterval / Timestamp
// ============================================================================

// Paced 给每个事件附加固定延迟，使相邻发射之间至少间隔interval
// 数据与完成事件按到达顺序排队延迟投递；错误不排队，立即转发
func Paced(source Source, interval time.Duration, clk Clock) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var queue []Notification
		var timer clockz.Timer
		timerActive := false
		finished := false
		subs := NewCompositeSubscription()

		var fire func()
		scheduleLocked := func() {
			if timerActive || finished || len(queue) == 0 {
				return
			}
			timerActive = true
			timer = clk.AfterFunc(interval, fire)
		}
		fire = func() {
			mu.Lock()
			timerActive = false
			if finished || len(queue) == 0 {
				mu.Unlock()
				return
			}
			n := queue[0]
			queue = queue[1:]
			if n.IsTerminal() {
				finished = true
			}
			scheduleLocked()
			mu.Unlock()
			observer(n)
		}

		subs.Add(source.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			if n.IsError() {
				finished = true
				pending := timer
				mu.Unlock()
				if pending != nil {
					pending.Stop()
				}
				observer(n)
				subs.Cancel()
				return
			}
			queue = append(queue, n)
			scheduleLocked()
			mu.Unlock()
		}))

		subs.Add(NewBaseSubscription(func() {
			mu.Lock()
			finished = true
			pending := timer
			mu.Unlock()
			if pending != nil {
				pending.Stop()
			}
		}))

		return subs
	})
}

// TimeIntervalValue 带间隔的值，Interval为与上一个事件之间的时长
type TimeIntervalValue struct {
	Value    interface{}
	Interval time.Duration
}

// TimeInterval 把每个数据事件包装为TimeIntervalValue，
// 记录它与上一个事件（首个事件则与订阅时刻）之间的间隔
func TimeInterval(source Source, clk Clock) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		previous := clk.Now()

		return source.Subscribe(func(n Notification) {
			if !n.IsData() {
				observer(n)
				return
			}
			now := clk.Now()
			mu.Lock()
			elapsed := now.Sub(previous)
			previous = now
			mu.Unlock()
			observer(CreateData(TimeIntervalValue{Value: n.Value, Interval: elapsed}))
		})
	})
}

// TimestampedValue 带墙上时钟时间戳的值
type TimestampedValue struct {
	Value     interface{}
	Timestamp time.Time
}

// Timestamp 把每个数据事件包装为TimestampedValue，附上发射时刻
func Timestamp(source Source, clk Clock) Source {
	return NewSource(func(observer Observer) Subscription {
		return source.Subscribe(func(n Notification) {
			if !n.IsData() {
				observer(n)
				return
			}
			observer(CreateData(TimestampedValue{Value: n.Value, Timestamp: clk.Now()}))
		})
	})
}
