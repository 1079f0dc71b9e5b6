// Window operators for rxstream
// 窗口操作符：Buffer家族的镜像，批次换成内部热源窗口
// 窗口在打开时就发给下游，值实时路由进窗口，关闭时窗口完成
package rxstream

import (
	"sync"
	"time"
)

// ============================================================================
// Window 触发式窗口
// ============================================================================

// Window 订阅时立即打开并发射第一个窗口，数据事件实时路由进当前窗口；
// trigger每发出一个数据事件就完成当前窗口并打开新窗口发给下游
// 源终止时当前窗口随之终止
func Window(source Source, trigger Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		finished := false
		current := NewBroadcastSubject()
		subs := NewCompositeSubscription()

		observer(CreateData(Source(current)))

		subs.Add(trigger.Subscribe(func(n Notification) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			switch n.Kind {
			case KindError:
				finished = true
				window := current
				mu.Unlock()
				window.Fail(n.Err, n.Trace)
				observer(n)
				subs.Cancel()
			case KindDone:
				// 触发器完成后窗口不再轮换，源继续照常终止
				mu.Unlock()
			case KindData:
				closing := current
				opened := NewBroadcastSubject()
				current = opened
				mu.Unlock()
				closing.Complete()
				observer(CreateData(Source(opened)))
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
				window := current
				mu.Unlock()
				window.Fail(n.Err, n.Trace)
				observer(n)
				subs.Cancel()
			case KindDone:
				finished = true
				window := current
				mu.Unlock()
				window.Complete()
				observer(CreateDone())
				subs.Cancel()
			case KindData:
				window := current
				mu.Unlock()
				window.Emit(n.Value)
			}
		}))

		return subs
	})
}

// WindowTime 以固定周期轮换窗口的Window
func WindowTime(source Source, timespan time.Duration, clk Clock) Source {
	return Window(source, Interval(timespan, clk))
}

// ============================================================================
// WindowCount 计数窗口
// ============================================================================

// WindowCount 维护可重叠的计数窗口：每startEvery个元素打开一个新窗口并发给下游
// （startEvery不大于0时取count，即不重叠），窗口收满count个元素时完成并移除
// 源完成时按打开顺序完成剩余窗口
func WindowCount(source Source, count, startEvery int) Source {
	if count < 1 {
		count = 1
	}
	if startEvery < 1 {
		startEvery = count
	}
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		type countWindow struct {
			subject *BroadcastSubject
			size    int
		}
		var open []*countWindow
		seen := 0

		// 首个窗口在订阅时打开
		first := &countWindow{subject: NewBroadcastSubject()}
		open = append(open, first)
		observer(CreateData(Source(first.subject)))

		return source.Subscribe(func(n Notification) {
			switch n.Kind {
			case KindError:
				mu.Lock()
				remaining := open
				open = nil
				mu.Unlock()
				for _, w := range remaining {
					w.subject.Fail(n.Err, n.Trace)
				}
				observer(n)
			case KindDone:
				mu.Lock()
				remaining := open
				open = nil
				mu.Unlock()
				for _, w := range remaining {
					w.subject.Complete()
				}
				observer(CreateDone())
			case KindData:
				mu.Lock()
				var opened *countWindow
				if seen > 0 && seen%startEvery == 0 {
					opened = &countWindow{subject: NewBroadcastSubject()}
					open = append(open, opened)
				}
				seen++
				receivers := append([]*countWindow(nil), open...)
				for _, w := range open {
					w.size++
				}
				var full []*countWindow
				// 最早打开的窗口最先收满
				for len(open) > 0 && open[0].size == count {
					full = append(full, open[0])
					open = open[1:]
				}
				mu.Unlock()
				if opened != nil {
					observer(CreateData(Source(opened.subject)))
				}
				for _, w := range receivers {
					w.subject.Emit(n.Value)
				}
				for _, w := range full {
					w.subject.Complete()
				}
			}
		})
	})
}
