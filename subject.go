// Broadcast subject for rxstream
// 热源实现：单次运行多监听者的广播主题，是groupBy/window内部组的基础原语
package rxstream

import (
	"sync"
)

// ============================================================================
// BroadcastSubject 广播主题
// ============================================================================

// BroadcastSubject 热源：多个监听者挂接到同一次运行，
// 每个监听者只能看到挂接之后发生的事件
// 终止之后挂接的监听者会立即收到终止事件
type BroadcastSubject struct {
	mu        sync.Mutex
	observers map[int64]*subscriptionSink
	nextID    int64
	done      bool
	failed    bool
	err       error
	trace     string
}

// NewBroadcastSubject 创建广播主题
func NewBroadcastSubject() *BroadcastSubject {
	return &BroadcastSubject{
		observers: make(map[int64]*subscriptionSink),
	}
}

// Subscribe 挂接观察者
func (bs *BroadcastSubject) Subscribe(observer Observer) Subscription {
	sink := newSubscriptionSink(observer)

	bs.mu.Lock()
	if bs.failed {
		err, trace := bs.err, bs.trace
		bs.mu.Unlock()
		sink.deliver(CreateErrorTrace(err, trace))
		return sink
	}
	if bs.done {
		bs.mu.Unlock()
		sink.deliver(CreateDone())
		return sink
	}

	id := bs.nextID
	bs.nextID++
	bs.observers[id] = sink
	bs.mu.Unlock()

	sink.attach(NewBaseSubscription(func() {
		bs.mu.Lock()
		delete(bs.observers, id)
		bs.mu.Unlock()
	}))

	return sink
}

// SubscribeWithCallbacks 使用回调函数挂接
func (bs *BroadcastSubject) SubscribeWithCallbacks(onData OnData, onError OnError, onDone OnDone) Subscription {
	return bs.Subscribe(CallbackObserver(onData, onError, onDone))
}

// IsBroadcast 广播主题总是热源
func (bs *BroadcastSubject) IsBroadcast() bool {
	return true
}

// AsObserver 返回Observer函数，使主题可以直接挂在某个Source下游
func (bs *BroadcastSubject) AsObserver() Observer {
	return bs.Dispatch
}

// Dispatch 按通知种类分发事件
func (bs *BroadcastSubject) Dispatch(n Notification) {
	switch n.Kind {
	case KindData:
		bs.Emit(n.Value)
	case KindError:
		bs.Fail(n.Err, n.Trace)
	case KindDone:
		bs.Complete()
	}
}

// Emit 向当前全部监听者广播一个数据事件
func (bs *BroadcastSubject) Emit(value interface{}) {
	bs.mu.Lock()
	if bs.done || bs.failed {
		bs.mu.Unlock()
		return
	}
	sinks := bs.snapshotLocked()
	bs.mu.Unlock()

	n := CreateData(value)
	for _, sink := range sinks {
		sink.deliver(n)
	}
}

// Fail 广播错误事件并终止主题
func (bs *BroadcastSubject) Fail(err error, trace string) {
	bs.mu.Lock()
	if bs.done || bs.failed {
		bs.mu.Unlock()
		return
	}
	bs.failed = true
	bs.err = err
	bs.trace = trace
	sinks := bs.snapshotLocked()
	bs.observers = make(map[int64]*subscriptionSink)
	bs.mu.Unlock()

	n := CreateErrorTrace(err, trace)
	for _, sink := range sinks {
		sink.deliver(n)
	}
}

// Complete 广播完成事件并终止主题
func (bs *BroadcastSubject) Complete() {
	bs.mu.Lock()
	if bs.done || bs.failed {
		bs.mu.Unlock()
		return
	}
	bs.done = true
	sinks := bs.snapshotLocked()
	bs.observers = make(map[int64]*subscriptionSink)
	bs.mu.Unlock()

	n := CreateDone()
	for _, sink := range sinks {
		sink.deliver(n)
	}
}

// HasObservers 检查当前是否有监听者
func (bs *BroadcastSubject) HasObservers() bool {
	return bs.ObserverCount() > 0
}

// ObserverCount 获取当前监听者数量
func (bs *BroadcastSubject) ObserverCount() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.observers)
}

// IsTerminated 检查主题是否已终止
func (bs *BroadcastSubject) IsTerminated() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.done || bs.failed
}

// snapshotLocked 按挂接顺序快照当前监听者，调用方需持有bs.mu
func (bs *BroadcastSubject) snapshotLocked() []*subscriptionSink {
	ids := make([]int64, 0, len(bs.observers))
	for id := range bs.observers {
		ids = append(ids, id)
	}
	// 保持挂接顺序投递
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	sinks := make([]*subscriptionSink, 0, len(ids))
	for _, id := range ids {
		sinks = append(sinks, bs.observers[id])
	}
	return sinks
}
