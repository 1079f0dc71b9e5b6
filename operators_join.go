// Join combinators for rxstream
// 多源联结组合符：CombineLatest, Zip, ForkJoin, Merge, Concat, ConcatEager,
// Race, SwitchLatest/SwitchMap, WithLatestFrom, SequenceEqual
package rxstream

import (
	"fmt"
	"sync"
)

// ============================================================================
// CombineLatest 组合最新值
// ============================================================================

// CombineLatest 缓存每个输入的最新值，任一输入发射时用combiner组合全部最新值发射，
// 但要等到每个输入都至少发射过一次
// 某输入在从未发射的情况下完成时，整体立即完成；任一输入出错时立即转发错误并取消其余输入；
// 全部输入完成后整体完成
func CombineLatest(sources []Source, combiner func(values []interface{}) interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		if len(sources) == 0 {
			observer(CreateDone())
			return NewBaseSubscription(nil)
		}

		var mu sync.Mutex
		total := len(sources)
		latest := make([]interface{}, total)
		has := make([]bool, total)
		readyCount := 0
		activeCount := total
		finished := false
		subs := NewCompositeSubscription()

		for i, source := range sources {
			mu.Lock()
			stop := finished
			mu.Unlock()
			if stop {
				break
			}

			index := i
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
					if !has[index] {
						// 该输入从未发射过值，整体不可能再发射
						finished = true
						mu.Unlock()
						observer(CreateDone())
						subs.Cancel()
						return
					}
					activeCount--
					allDone := activeCount == 0
					if allDone {
						finished = true
					}
					mu.Unlock()
					if allDone {
						observer(CreateDone())
					}
				case KindData:
					if !has[index] {
						has[index] = true
						readyCount++
					}
					latest[index] = n.Value
					if readyCount < total {
						mu.Unlock()
						return
					}
					values := append([]interface{}(nil), latest...)
					mu.Unlock()
					observer(CreateData(combiner(values)))
				}
			}))
		}

		return subs
	})
}

// CombineLatest2 双输入版本的CombineLatest，薄适配
func CombineLatest2(a, b Source, combiner func(a, b interface{}) interface{}) Source {
	return CombineLatest([]Source{a, b}, func(values []interface{}) interface{} {
		return combiner(values[0], values[1])
	})
}

// CombineLatest3 三输入版本的CombineLatest，薄适配
func CombineLatest3(a, b, c Source, combiner func(a, b, c interface{}) interface{}) Source {
	return CombineLatest([]Source{a, b, c}, func(values []interface{}) interface{} {
		return combiner(values[0], values[1], values[2])
	})
}

// ============================================================================
// Zip 按位配对
// ============================================================================

// Zip 为每个输入维护一个FIFO队列，全部队列非空时各出队一个值用zipper组合发射
// 任一输入完成且其队列已空时整体完成，已入队但无法配对的值被丢弃，
// 即输出长度等于各输入可用值数量的最小值
func Zip(sources []Source, zipper func(values []interface{}) interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		if len(sources) == 0 {
			observer(CreateDone())
			return NewBaseSubscription(nil)
		}

		var mu sync.Mutex
		total := len(sources)
		queues := make([][]interface{}, total)
		completed := make([]bool, total)
		finished := false
		subs := NewCompositeSubscription()

		// exhaustedLocked 检查是否有输入已完成且队列为空，调用方需持有mu
		exhaustedLocked := func() bool {
			for i := 0; i < total; i++ {
				if completed[i] && len(queues[i]) == 0 {
					return true
				}
			}
			return false
		}

		for i, source := range sources {
			mu.Lock()
			stop := finished
			mu.Unlock()
			if stop {
				break
			}

			index := i
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
					completed[index] = true
					if len(queues[index]) > 0 {
						mu.Unlock()
						return
					}
					finished = true
					mu.Unlock()
					observer(CreateDone())
					subs.Cancel()
				case KindData:
					queues[index] = append(queues[index], n.Value)
					for {
						ready := true
						for j := 0; j < total; j++ {
							if len(queues[j]) == 0 {
								ready = false
								break
							}
						}
						if !ready {
							break
						}
						heads := make([]interface{}, total)
						for j := 0; j < total; j++ {
							heads[j] = queues[j][0]
							queues[j] = queues[j][1:]
						}
						mu.Unlock()
						observer(CreateData(zipper(heads)))
						mu.Lock()
						if finished {
							break
						}
					}
					if finished {
						mu.Unlock()
						return
					}
					if exhaustedLocked() {
						finished = true
						mu.Unlock()
						observer(CreateDone())
						subs.Cancel()
						return
					}
					mu.Unlock()
				}
			}))
		}

		return subs
	})
}

// Zip2 双输入版本的Zip，薄适配
func Zip2(a, b Source, zipper func(a, b interface{}) interface{}) Source {
	return Zip([]Source{a, b}, func(values []interface{}) interface{} {
		return zipper(values[0], values[1])
	})
}

// Zip3 三输入版本的Zip，薄适配
func Zip3(a, b, c Source, zipper func(a, b, c interface{}) interface{}) Source {
	return Zip([]Source{a, b, c}, func(values []interface{}) interface{} {
		return zipper(values[0], values[1], values[2])
	})
}

// ============================================================================
// ForkJoin 终值联结
// ============================================================================

// ForkJoin 只记录每个输入的最后一个值，全部输入完成后组合各终值发射一次
// 任一输入出错时整体以该错误终止；存在零值完成的输入时不发射组合结果，直接完成
func ForkJoin(sources []Source, combiner func(values []interface{}) interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		if len(sources) == 0 {
			observer(CreateDone())
			return NewBaseSubscription(nil)
		}

		var mu sync.Mutex
		total := len(sources)
		last := make([]interface{}, total)
		has := make([]bool, total)
		remaining := total
		finished := false
		subs := NewCompositeSubscription()

		for i, source := range sources {
			mu.Lock()
			stop := finished
			mu.Unlock()
			if stop {
				break
			}

			index := i
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
				case KindData:
					last[index] = n.Value
					has[index] = true
					mu.Unlock()
				case KindDone:
					remaining--
					if remaining > 0 {
						mu.Unlock()
						return
					}
					finished = true
					complete := true
					for j := 0; j < total; j++ {
						if !has[j] {
							complete = false
							break
						}
					}
					values := append([]interface{}(nil), last...)
					mu.Unlock()
					if complete {
						observer(CreateData(combiner(values)))
					}
					observer(CreateDone())
				}
			}))
		}

		return subs
	})
}

// ForkJoin2 双输入版本的ForkJoin，薄适配
func ForkJoin2(a, b Source, combiner func(a, b interface{}) interface{}) Source {
	return ForkJoin([]Source{a, b}, func(values []interface{}) interface{} {
		return combiner(values[0], values[1])
	})
}

// ForkJoin3 三输入版本的ForkJoin，薄适配
func ForkJoin3(a, b, c Source, combiner func(a, b, c interface{}) interface{}) Source {
	return ForkJoin([]Source{a, b, c}, func(values []interface{}) interface{} {
		return combiner(values[0], values[1], values[2])
	})
}

// ============================================================================
// Merge / Concat / ConcatEager
// ============================================================================

// Merge 合并多个输入，任何输入的数据事件按到达顺序立即转发
// 全部输入完成后整体完成；任一输入出错时立即转发并取消其余输入
func Merge(sources ...Source) Source {
	return NewSource(func(observer Observer) Subscription {
		if len(sources) == 0 {
			observer(CreateDone())
			return NewBaseSubscription(nil)
		}

		var mu sync.Mutex
		activeCount := len(sources)
		finished := false
		subs := NewCompositeSubscription()

		for _, source := range sources {
			mu.Lock()
			stop := finished
			mu.Unlock()
			if stop {
				break
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
					activeCount--
					allDone := activeCount == 0
					if allDone {
						finished = true
					}
					mu.Unlock()
					if allDone {
						observer(CreateDone())
					}
				case KindData:
					mu.Unlock()
					observer(n)
				}
			}))
		}

		return subs
	})
}

// Concat 顺序连接多个输入：订阅第一个并转发其数据事件，完成后再订阅下一个
// 当前输入出错时整条链直接终止，不再前进
func Concat(sources ...Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		cancelled := false
		active := 0
		var current Subscription

		var subscribeNext func(index int)
		subscribeNext = func(index int) {
			mu.Lock()
			if cancelled {
				mu.Unlock()
				return
			}
			if index >= len(sources) {
				mu.Unlock()
				observer(CreateDone())
				return
			}
			mu.Unlock()

			sub := sources[index].Subscribe(func(n Notification) {
				if n.IsDone() {
					mu.Lock()
					active = index + 1
					mu.Unlock()
					subscribeNext(index + 1)
					return
				}
				// 数据与错误均直接转发，错误经由门控终止整条链
				observer(n)
			})

			mu.Lock()
			if !cancelled && active == index {
				current = sub
				mu.Unlock()
				return
			}
			mu.Unlock()
			// 该输入已同步完成或整体已取消，句柄不再需要
			sub.Cancel()
		}
		subscribeNext(0)

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

// ConcatEager 立即预订阅全部输入并缓冲其事件，
// 但向监听者释放事件时保持与Concat完全相同的串行顺序
// 非活动输入的错误同样按位置缓冲，轮到该输入时才终止整条链
func ConcatEager(sources ...Source) Source {
	return NewSource(func(observer Observer) Subscription {
		if len(sources) == 0 {
			observer(CreateDone())
			return NewBaseSubscription(nil)
		}

		var mu sync.Mutex
		total := len(sources)
		buffers := make([][]interface{}, total)
		completed := make([]bool, total)
		failures := make([]*Notification, total)
		active := 0
		finished := false
		var queue []Notification
		delivering := false
		subs := NewCompositeSubscription()

		// drainLocked 把当前活动输入已缓冲的事件追加到投递队列并尽量前进，
		// 调用方需持有mu
		drainLocked := func() {
			for active < total {
				buffered := buffers[active]
				buffers[active] = nil
				for _, value := range buffered {
					queue = append(queue, CreateData(value))
				}
				if failure := failures[active]; failure != nil {
					finished = true
					queue = append(queue, *failure)
					return
				}
				if !completed[active] {
					return
				}
				active++
			}
			finished = true
			queue = append(queue, CreateDone())
		}

		// flushLocked 在锁外逐条投递队列中的事件，调用方需持有mu
		// 同一时刻只有一个投递者，投递期间新入队的事件由它继续释放，
		// 监听者可以同步回灌任意输入
		flushLocked := func() {
			if delivering {
				return
			}
			delivering = true
			for len(queue) > 0 {
				batch := queue
				queue = nil
				mu.Unlock()
				for _, n := range batch {
					observer(n)
				}
				mu.Lock()
			}
			delivering = false
		}

		for i, source := range sources {
			mu.Lock()
			stop := finished
			mu.Unlock()
			if stop {
				break
			}

			index := i
			subs.Add(source.Subscribe(func(n Notification) {
				mu.Lock()
				if finished {
					mu.Unlock()
					return
				}
				switch n.Kind {
				case KindData:
					if index == active {
						queue = append(queue, n)
					} else {
						buffers[index] = append(buffers[index], n.Value)
					}
				case KindError:
					failure := n
					failures[index] = &failure
					if index == active {
						drainLocked()
					}
				case KindDone:
					completed[index] = true
					if index == active {
						active++
						drainLocked()
					}
				}
				flushLocked()
				stillFinished := finished
				mu.Unlock()
				if stillFinished {
					subs.Cancel()
				}
			}))
		}

		return subs
	})
}

// ============================================================================
// Race 竞速
// ============================================================================

// Race 订阅全部输入，第一个产生任何事件（数据、错误或完成）的输入获胜，
// 此后只转发获胜者的事件，其余输入被立即取消
func Race(sources ...Source) Source {
	return NewSource(func(observer Observer) Subscription {
		if len(sources) == 0 {
			observer(CreateDone())
			return NewBaseSubscription(nil)
		}

		var mu sync.Mutex
		winner := -1
		subscriptions := make([]Subscription, len(sources))
		subs := NewCompositeSubscription()

		for i, source := range sources {
			mu.Lock()
			decided := winner >= 0
			mu.Unlock()
			if decided {
				break
			}

			index := i
			sub := source.Subscribe(func(n Notification) {
				mu.Lock()
				if winner == -1 {
					winner = index
					losers := make([]Subscription, 0, len(subscriptions))
					for j, other := range subscriptions {
						if j != index && other != nil {
							losers = append(losers, other)
						}
					}
					mu.Unlock()
					// 获胜者确定，立即取消其余输入
					for _, loser := range losers {
						loser.Cancel()
					}
					observer(n)
					return
				}
				isWinner := winner == index
				mu.Unlock()
				if isWinner {
					observer(n)
				}
			})

			mu.Lock()
			subscriptions[index] = sub
			if winner >= 0 && winner != index {
				mu.Unlock()
				sub.Cancel()
			} else {
				mu.Unlock()
			}
			subs.Add(sub)
		}

		return subs
	})
}

// ============================================================================
// SwitchLatest / SwitchMap 切换
// ============================================================================

// SwitchLatest 订阅外层源，外层发射的每个内层Source成为新的活动内层订阅，
// 同时取消之前的内层订阅；只转发当前活动内层的事件
// 外层完成且最后一个活动内层也完成时整体完成
func SwitchLatest(outer Source) Source {
	return switchCore(outer, func(value interface{}) (Source, error) {
		inner, ok := value.(Source)
		if !ok {
			return nil, fmt.Errorf("rxstream: SwitchLatest的外层值不是Source，得到 %T", value)
		}
		return inner, nil
	})
}

// SwitchMap 将每个外层数据事件经selector映射为内层Source后切换订阅
func SwitchMap(source Source, selector func(value interface{}) Source) Source {
	return switchCore(source, func(value interface{}) (Source, error) {
		return selector(value), nil
	})
}

// switchCore 切换类操作符的共用状态机
func switchCore(outer Source, project func(value interface{}) (Source, error)) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		finished := false
		outerDone := false
		innerActive := false
		generation := 0
		inner := NewSerialSubscription()
		subs := NewCompositeSubscription()

		outerSub := outer.Subscribe(func(n Notification) {
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
				outerDone = true
				idle := !innerActive
				if idle {
					finished = true
				}
				mu.Unlock()
				if idle {
					observer(CreateDone())
				}
			case KindData:
				innerSource, err := project(n.Value)
				if err != nil {
					finished = true
					mu.Unlock()
					observer(CreateError(err))
					subs.Cancel()
					return
				}
				generation++
				current := generation
				innerActive = true
				mu.Unlock()

				// 旧的内层订阅在Set时被同步取消
				sub := innerSource.Subscribe(func(innerN Notification) {
					mu.Lock()
					if finished || current != generation {
						mu.Unlock()
						return
					}
					switch innerN.Kind {
					case KindError:
						finished = true
						mu.Unlock()
						observer(innerN)
						subs.Cancel()
					case KindDone:
						innerActive = false
						allDone := outerDone
						if allDone {
							finished = true
						}
						mu.Unlock()
						if allDone {
							observer(CreateDone())
						}
					case KindData:
						mu.Unlock()
						observer(innerN)
					}
				})

				mu.Lock()
				stale := finished || current != generation
				mu.Unlock()
				if stale {
					sub.Cancel()
					return
				}
				inner.Set(sub)
			}
		})

		subs.Add(outerSub)
		subs.Add(inner)
		return subs
	})
}

// ============================================================================
// WithLatestFrom 主源采样
// ============================================================================

// WithLatestFrom 主源的每个数据事件与各辅源的最新值组合后发射，
// 但要等到每个辅源都至少发射过一次；辅源发射本身不会触发输出
// 主源完成时整体完成并取消全部辅源
func WithLatestFrom(primary Source, others []Source, combiner func(primary interface{}, others []interface{}) interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		total := len(others)
		latest := make([]interface{}, total)
		has := make([]bool, total)
		readyCount := 0
		finished := false
		subs := NewCompositeSubscription()

		// 先订阅辅源，保证同步辅源的最新值在主源发射前就绪
		for i, other := range others {
			mu.Lock()
			stop := finished
			mu.Unlock()
			if stop {
				break
			}

			index := i
			subs.Add(other.Subscribe(func(n Notification) {
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
				case KindData:
					if !has[index] {
						has[index] = true
						readyCount++
					}
					latest[index] = n.Value
					mu.Unlock()
				case KindDone:
					// 辅源完成不影响输出，已缓存的最新值继续可用
					mu.Unlock()
				}
			}))
		}

		subs.Add(primary.Subscribe(func(n Notification) {
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
				if readyCount < total {
					mu.Unlock()
					return
				}
				values := append([]interface{}(nil), latest...)
				mu.Unlock()
				observer(CreateData(combiner(n.Value, values)))
			}
		}))

		return subs
	})
}

// WithLatestFrom2 单辅源版本的WithLatestFrom，薄适配
func WithLatestFrom2(primary, other Source, combiner func(primary, other interface{}) interface{}) Source {
	return WithLatestFrom(primary, []Source{other}, func(p interface{}, others []interface{}) interface{} {
		return combiner(p, others[0])
	})
}

// ============================================================================
// SequenceEqual 序列相等
// ============================================================================

// SequenceEqual 按位置缓冲并逐对比较两个序列，两者都完成后发射单个布尔值：
// 长度一致且所有配对值满足equals时为true
// 一旦发现位置不匹配即可短路发射false并取消两个输入
// equals为nil时使用==比较
func SequenceEqual(a, b Source, equals func(x, y interface{}) bool) Source {
	if equals == nil {
		equals = func(x, y interface{}) bool { return x == y }
	}
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var queueA, queueB []interface{}
		doneA, doneB := false, false
		finished := false
		subs := NewCompositeSubscription()

		// verdictLocked 返回当前是否可以得出结论以及结论值，调用方需持有mu
		verdictLocked := func() (decided, equal bool) {
			for len(queueA) > 0 && len(queueB) > 0 {
				x, y := queueA[0], queueB[0]
				queueA = queueA[1:]
				queueB = queueB[1:]
				if !equals(x, y) {
					return true, false
				}
			}
			// 一侧已完成却又落后于另一侧时长度必然不等
			if doneA && len(queueA) == 0 && len(queueB) > 0 {
				return true, false
			}
			if doneB && len(queueB) == 0 && len(queueA) > 0 {
				return true, false
			}
			if doneA && doneB {
				return true, len(queueA) == 0 && len(queueB) == 0
			}
			return false, false
		}

		handle := func(side int) Observer {
			return func(n Notification) {
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
					return
				case KindData:
					if side == 0 {
						queueA = append(queueA, n.Value)
					} else {
						queueB = append(queueB, n.Value)
					}
				case KindDone:
					if side == 0 {
						doneA = true
					} else {
						doneB = true
					}
				}
				decided, equal := verdictLocked()
				if !decided {
					mu.Unlock()
					return
				}
				finished = true
				mu.Unlock()
				observer(CreateData(equal))
				observer(CreateDone())
				subs.Cancel()
			}
		}

		subs.Add(a.Subscribe(handle(0)))
		mu.Lock()
		stop := finished
		mu.Unlock()
		if !stop {
			subs.Add(b.Subscribe(handle(1)))
		}

		return subs
	})
}
