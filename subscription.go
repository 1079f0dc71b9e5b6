// Subscription lifecycle management for rxstream
// 订阅生命周期管理，包含暂停/恢复/取消以及组合式与可替换订阅
package rxstream

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// 生命周期管理
// ============================================================================

// Subscription 订阅接口，表示监听者与 Source 之间的一条活动关系
// 状态机：Active → Paused → Active（可重复）→ Cancelled|Completed（终态）
type Subscription interface {
	// Cancel 取消订阅，同步取消其持有的全部上游订阅
	Cancel()
	// IsCancelled 检查是否已取消
	IsCancelled() bool
	// Pause 暂停向监听者投递数据事件（终止事件仍会投递）
	Pause()
	// Resume 恢复投递
	Resume()
	// IsPaused 检查是否处于暂停状态
	IsPaused() bool
}

// baseSubscription 基础订阅实现
type baseSubscription struct {
	cancelled int32
	paused    int32
	onCancel  func()
}

// NewBaseSubscription 创建基础订阅，onCancel 在首次 Cancel 时同步执行
func NewBaseSubscription(onCancel func()) Subscription {
	return &baseSubscription{onCancel: onCancel}
}

// Cancel 取消订阅
func (s *baseSubscription) Cancel() {
	if atomic.CompareAndSwapInt32(&s.cancelled, 0, 1) {
		if s.onCancel != nil {
			s.onCancel()
		}
	}
}

// IsCancelled 检查是否已取消订阅
func (s *baseSubscription) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}

// Pause 暂停投递
func (s *baseSubscription) Pause() {
	atomic.StoreInt32(&s.paused, 1)
}

// Resume 恢复投递
func (s *baseSubscription) Resume() {
	atomic.StoreInt32(&s.paused, 0)
}

// IsPaused 检查是否暂停
func (s *baseSubscription) IsPaused() bool {
	return atomic.LoadInt32(&s.paused) == 1
}

// emptySubscription 空订阅，用于已终止的源
type emptySubscription struct{}

func (emptySubscription) Cancel()           {}
func (emptySubscription) IsCancelled() bool { return true }
func (emptySubscription) Pause()            {}
func (emptySubscription) Resume()           {}
func (emptySubscription) IsPaused() bool    { return false }

// NewEmptySubscription 创建空订阅
func NewEmptySubscription() Subscription {
	return emptySubscription{}
}

// ============================================================================
// CompositeSubscription 组合式订阅
// ============================================================================

// CompositeSubscription 组合式订阅管理器，统一管理一组上游订阅
type CompositeSubscription struct {
	mu            sync.Mutex
	cancelled     bool
	paused        bool
	subscriptions []Subscription
}

// NewCompositeSubscription 创建组合式订阅
func NewCompositeSubscription(subscriptions ...Subscription) *CompositeSubscription {
	cs := &CompositeSubscription{}
	for _, sub := range subscriptions {
		cs.Add(sub)
	}
	return cs
}

// Add 添加一个上游订阅；若已取消则立即取消新加入的订阅
func (cs *CompositeSubscription) Add(subscription Subscription) {
	if subscription == nil {
		return
	}
	cs.mu.Lock()
	if cs.cancelled {
		cs.mu.Unlock()
		subscription.Cancel()
		return
	}
	cs.subscriptions = append(cs.subscriptions, subscription)
	cs.mu.Unlock()
}

// Cancel 同步取消全部上游订阅
func (cs *CompositeSubscription) Cancel() {
	cs.mu.Lock()
	if cs.cancelled {
		cs.mu.Unlock()
		return
	}
	cs.cancelled = true
	subscriptions := cs.subscriptions
	cs.subscriptions = nil
	cs.mu.Unlock()

	for _, sub := range subscriptions {
		sub.Cancel()
	}
}

// IsCancelled 检查是否已取消
func (cs *CompositeSubscription) IsCancelled() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cancelled
}

// Pause 暂停全部上游订阅
func (cs *CompositeSubscription) Pause() {
	cs.mu.Lock()
	cs.paused = true
	subscriptions := append([]Subscription(nil), cs.subscriptions...)
	cs.mu.Unlock()

	for _, sub := range subscriptions {
		sub.Pause()
	}
}

// Resume 恢复全部上游订阅
func (cs *CompositeSubscription) Resume() {
	cs.mu.Lock()
	cs.paused = false
	subscriptions := append([]Subscription(nil), cs.subscriptions...)
	cs.mu.Unlock()

	for _, sub := range subscriptions {
		sub.Resume()
	}
}

// IsPaused 检查是否暂停
func (cs *CompositeSubscription) IsPaused() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.paused
}

// ============================================================================
// SerialSubscription 可替换订阅
// ============================================================================

// SerialSubscription 可替换订阅，持有至多一个当前订阅
// 替换时旧订阅被同步取消，用于 switchLatest/debounce 这类滚动持有的场景
type SerialSubscription struct {
	mu        sync.Mutex
	cancelled bool
	current   Subscription
}

// NewSerialSubscription 创建可替换订阅
func NewSerialSubscription() *SerialSubscription {
	return &SerialSubscription{}
}

// Set 替换当前订阅，旧订阅被同步取消
func (ss *SerialSubscription) Set(subscription Subscription) {
	ss.mu.Lock()
	if ss.cancelled {
		ss.mu.Unlock()
		if subscription != nil {
			subscription.Cancel()
		}
		return
	}
	previous := ss.current
	ss.current = subscription
	ss.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}
}

// Clear 清空并取消当前订阅
func (ss *SerialSubscription) Clear() {
	ss.Set(nil)
}

// Cancel 取消当前订阅，之后 Set 的订阅会被立即取消
func (ss *SerialSubscription) Cancel() {
	ss.mu.Lock()
	if ss.cancelled {
		ss.mu.Unlock()
		return
	}
	ss.cancelled = true
	current := ss.current
	ss.current = nil
	ss.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
}

// IsCancelled 检查是否已取消
func (ss *SerialSubscription) IsCancelled() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.cancelled
}

// Pause 暂停当前订阅
func (ss *SerialSubscription) Pause() {
	ss.mu.Lock()
	current := ss.current
	ss.mu.Unlock()
	if current != nil {
		current.Pause()
	}
}

// Resume 恢复当前订阅
func (ss *SerialSubscription) Resume() {
	ss.mu.Lock()
	current := ss.current
	ss.mu.Unlock()
	if current != nil {
		current.Resume()
	}
}

// IsPaused 检查当前订阅是否暂停
func (ss *SerialSubscription) IsPaused() bool {
	ss.mu.Lock()
	current := ss.current
	ss.mu.Unlock()
	if current != nil {
		return current.IsPaused()
	}
	return false
}
