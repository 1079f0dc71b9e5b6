// Source implementation for rxstream
// Source 核心实现：冷源订阅、投递门控与订阅链的同步取消
package rxstream

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// Source 核心接口
// ============================================================================

// Source 异步序列的核心抽象：发射零个或多个数据事件，
// 然后恰好一个终止事件（错误或完成）
// 操作符是 Source -> Source 的包级纯函数，订阅行为由操作符闭包定义
type Source interface {
	// Subscribe 订阅观察者，返回该监听关系的订阅句柄
	Subscribe(observer Observer) Subscription

	// SubscribeWithCallbacks 使用回调三元组订阅
	SubscribeWithCallbacks(onData OnData, onError OnError, onDone OnDone) Subscription

	// IsBroadcast 报告是否为热源（多监听者共享同一次运行）
	IsBroadcast() bool
}

// sourceImpl 冷源实现，每次订阅独立运行 onSubscribe
type sourceImpl struct {
	onSubscribe func(observer Observer) Subscription
}

// NewSource 创建冷源；onSubscribe 对每次 Subscribe 独立执行，
// 全部操作符状态都生成在它构造的闭包里，订阅之间互不共享
func NewSource(onSubscribe func(observer Observer) Subscription) Source {
	return &sourceImpl{onSubscribe: onSubscribe}
}

// Subscribe 订阅观察者
// 投递门控保证：终止事件之后不再投递任何事件；暂停期间丢弃数据事件；
// 同一订阅上的投递串行化；取消时同步取消上游订阅
func (s *sourceImpl) Subscribe(observer Observer) Subscription {
	sink := newSubscriptionSink(observer)
	upstream := s.onSubscribe(sink.deliver)
	sink.attach(upstream)
	return sink
}

// SubscribeWithCallbacks 使用回调函数订阅
func (s *sourceImpl) SubscribeWithCallbacks(onData OnData, onError OnError, onDone OnDone) Subscription {
	return s.Subscribe(CallbackObserver(onData, onError, onDone))
}

// IsBroadcast 冷源总是返回false
func (s *sourceImpl) IsBroadcast() bool {
	return false
}

// CallbackObserver 将回调三元组组装为Observer
func CallbackObserver(onData OnData, onError OnError, onDone OnDone) Observer {
	return func(n Notification) {
		switch n.Kind {
		case KindData:
			if onData != nil {
				onData(n.Value)
			}
		case KindError:
			if onError != nil {
				onError(n.Err, n.Trace)
			}
		case KindDone:
			if onDone != nil {
				onDone()
			}
		}
	}
}

// ============================================================================
// 投递门控
// ============================================================================

// subscriptionSink 订阅端投递门控，同时充当返回给调用者的Subscription
type subscriptionSink struct {
	mu         sync.Mutex // 串行化投递
	observer   Observer
	cancelled  int32
	paused     int32
	terminated int32

	upMu     sync.Mutex
	upstream Subscription
}

func newSubscriptionSink(observer Observer) *subscriptionSink {
	return &subscriptionSink{observer: observer}
}

// deliver 投递一个通知，维护终止与暂停不变量
func (s *subscriptionSink) deliver(n Notification) {
	if atomic.LoadInt32(&s.cancelled) == 1 || atomic.LoadInt32(&s.terminated) == 1 {
		return
	}
	if n.IsData() && atomic.LoadInt32(&s.paused) == 1 {
		// 暂停期间不向监听者投递数据事件；缓冲策略由操作符自行决定
		return
	}

	s.mu.Lock()
	if atomic.LoadInt32(&s.cancelled) == 1 || atomic.LoadInt32(&s.terminated) == 1 {
		s.mu.Unlock()
		return
	}
	if n.IsTerminal() {
		atomic.StoreInt32(&s.terminated, 1)
	}
	s.observer(n)
	s.mu.Unlock()

	if n.IsTerminal() {
		// 序列已终止，同步释放上游订阅
		s.cancelUpstream()
	}
}

// attach 绑定上游订阅；若此时已取消或已终止则立即取消上游
func (s *subscriptionSink) attach(upstream Subscription) {
	if upstream == nil {
		return
	}
	s.upMu.Lock()
	s.upstream = upstream
	s.upMu.Unlock()

	if atomic.LoadInt32(&s.cancelled) == 1 || atomic.LoadInt32(&s.terminated) == 1 {
		s.cancelUpstream()
	}
}

func (s *subscriptionSink) cancelUpstream() {
	s.upMu.Lock()
	upstream := s.upstream
	s.upstream = nil
	s.upMu.Unlock()

	if upstream != nil {
		upstream.Cancel()
	}
}

// Cancel 取消订阅，同步取消上游订阅链
func (s *subscriptionSink) Cancel() {
	if atomic.CompareAndSwapInt32(&s.cancelled, 0, 1) {
		s.cancelUpstream()
	}
}

// IsCancelled 检查是否已取消
func (s *subscriptionSink) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}

// Pause 暂停向监听者投递数据事件
func (s *subscriptionSink) Pause() {
	atomic.StoreInt32(&s.paused, 1)
}

// Resume 恢复投递
func (s *subscriptionSink) Resume() {
	atomic.StoreInt32(&s.paused, 0)
}

// IsPaused 检查是否暂停
func (s *subscriptionSink) IsPaused() bool {
	return atomic.LoadInt32(&s.paused) == 1
}
