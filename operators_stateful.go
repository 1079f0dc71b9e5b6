// Stateful single-source operators for rxstream
// 有状态单源操作符：DistinctUnique, GroupBy, Pairwise, Scan, ExhaustMap,
// onErrorResume系列，以及Materialize/Dematerialize
// 全部状态生成于订阅时的闭包内，随订阅终止一并丢弃
package rxstream

import (
	"fmt"
	"sync"
)

// ============================================================================
// DistinctUnique 全历史去重
// ============================================================================

// DistinctUnique 记录整个订阅期间见过的所有值，压制与任何历史值相等的数据事件
// 与"去连续重复"不同，这里比对的是全部历史
// equals与hash都为nil时按Go可比较值用内建==去重；
// 提供hash时按哈希分桶、桶内用equals（nil则==）精确比较；
// 只提供equals时退化为线性扫描
func DistinctUnique(source Source, equals func(a, b interface{}) bool, hash func(value interface{}) uint64) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		eq := equals
		if eq == nil {
			eq = func(a, b interface{}) bool { return a == b }
		}

		var seenComparable map[interface{}]struct{}
		var seenBuckets map[uint64][]interface{}
		var seenLinear []interface{}
		switch {
		case equals == nil && hash == nil:
			seenComparable = make(map[interface{}]struct{})
		case hash != nil:
			seenBuckets = make(map[uint64][]interface{})
		}

		// isNewLocked 检查并登记一个值，调用方需持有mu
		isNewLocked := func(value interface{}) bool {
			switch {
			case seenComparable != nil:
				if _, ok := seenComparable[value]; ok {
					return false
				}
				seenComparable[value] = struct{}{}
				return true
			case seenBuckets != nil:
				bucket := hash(value)
				for _, prev := range seenBuckets[bucket] {
					if eq(prev, value) {
						return false
					}
				}
				seenBuckets[bucket] = append(seenBuckets[bucket], value)
				return true
			default:
				for _, prev := range seenLinear {
					if eq(prev, value) {
						return false
					}
				}
				seenLinear = append(seenLinear, value)
				return true
			}
		}

		return source.Subscribe(func(n Notification) {
			if !n.IsData() {
				observer(n)
				return
			}
			mu.Lock()
			fresh := isNewLocked(n.Value)
			mu.Unlock()
			if fresh {
				observer(n)
			}
		})
	})
}

// ============================================================================
// GroupBy 分组
// ============================================================================

// GroupedSource 携带派生键的内部热源组
type GroupedSource struct {
	Key    interface{}
	Source Source
}

// GroupBy 对每个数据事件计算keyFn(value)：首次出现的键会创建一个新的内部热源组，
// 并在首个值路由进组之前先把组发给下游；其后同键的值都路由进该组
// 父源完成时每个组都完成；父源出错时错误广播到所有打开的组和父输出
func GroupBy(source Source, keyFn func(value interface{}) interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		groups := make(map[interface{}]*BroadcastSubject)
		var order []*BroadcastSubject

		return source.Subscribe(func(n Notification) {
			switch n.Kind {
			case KindError:
				mu.Lock()
				open := append([]*BroadcastSubject(nil), order...)
				mu.Unlock()
				for _, group := range open {
					group.Fail(n.Err, n.Trace)
				}
				observer(n)
			case KindDone:
				mu.Lock()
				open := append([]*BroadcastSubject(nil), order...)
				mu.Unlock()
				for _, group := range open {
					group.Complete()
				}
				observer(n)
			case KindData:
				key := keyFn(n.Value)
				mu.Lock()
				group, exists := groups[key]
				if !exists {
					group = NewBroadcastSubject()
					groups[key] = group
					order = append(order, group)
				}
				mu.Unlock()
				if !exists {
					// 先把组交给下游，监听者有机会在首值到达前挂接
					observer(CreateData(&GroupedSource{Key: key, Source: group}))
				}
				group.Emit(n.Value)
			}
		})
	})
}

// ============================================================================
// Pairwise / Scan
// ============================================================================

// Pair 相邻值对
type Pair struct {
	Previous interface{}
	Current  interface{}
}

// Pairwise 从第二个数据事件起发射(前值,当前值)对；不足两个值时不发射
func Pairwise(source Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		var previous interface{}
		hasPrevious := false

		return source.Subscribe(func(n Notification) {
			if !n.IsData() {
				observer(n)
				return
			}
			mu.Lock()
			if !hasPrevious {
				previous = n.Value
				hasPrevious = true
				mu.Unlock()
				return
			}
			pair := Pair{Previous: previous, Current: n.Value}
			previous = n.Value
			mu.Unlock()
			observer(CreateData(pair))
		})
	})
}

// Scan 在整个订阅期间维护一个滚动累积值，从seed出发，
// 每收到一个输入值就发射更新后的累积值
func Scan(source Source, accumulator func(acc, value interface{}) interface{}, seed interface{}) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		acc := seed

		return source.Subscribe(func(n Notification) {
			if !n.IsData() {
				observer(n)
				return
			}
			mu.Lock()
			acc = accumulator(acc, n.Value)
			result := acc
			mu.Unlock()
			observer(CreateData(result))
		})
	})
}

// ============================================================================
// ExhaustMap 排斥映射
// ============================================================================

// ExhaustMap 没有活动内层源时把数据事件经mapper映射为内层源并订阅转发；
// 内层源活动期间后续外层数据事件被静默丢弃，直到该内层源完成
func ExhaustMap(source Source, mapper func(value interface{}) Source) Source {
	return NewSource(func(observer Observer) Subscription {
		var mu sync.Mutex
		innerActive := false
		outerDone := false
		finished := false
		generation := 0
		inner := NewSerialSubscription()
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
				if innerActive {
					// 内层活动期间丢弃外层值
					mu.Unlock()
					return
				}
				innerActive = true
				generation++
				current := generation
				mu.Unlock()

				sub := mapper(n.Value).Subscribe(func(innerN Notification) {
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
				stale := finished || current != generation || !innerActive
				mu.Unlock()
				if stale {
					sub.Cancel()
					return
				}
				inner.Set(sub)
			}
		}))

		subs.Add(inner)
		return subs
	})
}

// ============================================================================
// onErrorResume 系列
// ============================================================================

// OnErrorResume 拦截错误事件，用recovery(err, trace)构造的恢复源取而代之，
// 此后流水线继续投递恢复源的事件而不是终止
// 恢复源自身的错误不再被拦截
func OnErrorResume(source Source, recovery func(err error, trace string) Source) Source {
	return NewSource(func(observer Observer) Subscription {
		replacement := NewSerialSubscription()
		subs := NewCompositeSubscription()

		subs.Add(source.Subscribe(func(n Notification) {
			if !n.IsError() {
				observer(n)
				return
			}
			replacement.Set(recovery(n.Err, n.Trace).Subscribe(observer))
		}))

		subs.Add(replacement)
		return subs
	})
}

// OnErrorResumeNext 用固定的后继源替换错误，OnErrorResume的薄适配
func OnErrorResumeNext(source Source, next Source) Source {
	return OnErrorResume(source, func(error, string) Source {
		return next
	})
}

// OnErrorReturn 把错误替换为fn(err, trace)计算出的单个值，随后正常完成
func OnErrorReturn(source Source, fn func(err error, trace string) interface{}) Source {
	return OnErrorResume(source, func(err error, trace string) Source {
		return Just(fn(err, trace))
	})
}

// OnErrorReturnWith 把错误替换为固定的单个值，随后正常完成
func OnErrorReturnWith(source Source, value interface{}) Source {
	return OnErrorResume(source, func(error, string) Source {
		return Just(value)
	})
}

// ============================================================================
// Materialize / Dematerialize
// ============================================================================

// Materialize 把每个事件(含终止事件)物化为Notification数据值，
// 发射完终止事件对应的Notification后正常完成
func Materialize(source Source) Source {
	return NewSource(func(observer Observer) Subscription {
		return source.Subscribe(func(n Notification) {
			observer(CreateData(n))
			if n.IsTerminal() {
				observer(CreateDone())
			}
		})
	})
}

// Dematerialize 把Notification数据值还原为对应的事件
// 遇到非Notification的值时以类型错误终止
func Dematerialize(source Source) Source {
	return NewSource(func(observer Observer) Subscription {
		return source.Subscribe(func(n Notification) {
			switch n.Kind {
			case KindError, KindDone:
				observer(n)
			case KindData:
				wrapped, ok := n.Value.(Notification)
				if !ok {
					observer(CreateError(fmt.Errorf("rxstream: Dematerialize的输入不是Notification，得到 %T", n.Value)))
					return
				}
				observer(wrapped)
			}
		})
	})
}
