// Package rxstream provides composable push-based stream operators for Go
// 可组合的推送式流操作库：Source/Subscription/Notification三元核心，
// 操作符是 Source -> Source 的包级纯函数，全部状态生成于订阅时的闭包内
//
// 事件在 Data/Error/Done 之间统一表示为 Notification 普通值；每个订阅
// 由投递门控保证终止之后无事件、暂停丢弃数据、投递串行化、取消同步逐级上传
//
// RetryWhen 的策略：通知源发射任何数据事件即立即重试；通知源在从未发射的
// 情况下完成时整体"正常完成"而不是报错，这会静默吞掉底层错误，使用方需要
// 保证通知源要么发射要么出错
package rxstream

import (
	"fmt"
	"runtime/debug"
)

// ============================================================================
// 核心类型定义
// ============================================================================

// NotificationKind 通知的种类
type NotificationKind int32

const (
	// KindData 数据事件
	KindData NotificationKind = iota
	// KindError 错误事件，终止序列
	KindError
	// KindDone 完成事件，终止序列
	KindDone
)

// String 返回通知种类的可读名称
func (k NotificationKind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindError:
		return "Error"
	case KindDone:
		return "Done"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int32(k))
	}
}

// Notification 表示流中的一个事件，包含值、错误或完成信号
// 不可变值，操作符内部用它统一推理三种事件
type Notification struct {
	Kind  NotificationKind // 事件种类
	Value interface{}      // 数据值，仅 KindData 有效
	Err   error            // 错误信息，仅 KindError 有效
	Trace string           // 错误发生处的调用栈，可为空
}

// IsData 检查通知是否为数据事件
func (n Notification) IsData() bool {
	return n.Kind == KindData
}

// IsError 检查通知是否为错误事件
func (n Notification) IsError() bool {
	return n.Kind == KindError
}

// IsDone 检查通知是否为完成事件
func (n Notification) IsDone() bool {
	return n.Kind == KindDone
}

// IsTerminal 检查通知是否为终止事件（错误或完成）
func (n Notification) IsTerminal() bool {
	return n.Kind == KindError || n.Kind == KindDone
}

// ============================================================================
// 函数类型定义
// ============================================================================

// Observer 观察者函数类型，接收通知
type Observer func(n Notification)

// OnData 处理数据事件的函数
type OnData func(value interface{})

// OnError 处理错误事件的函数，trace 为捕获的调用栈（可为空）
type OnError func(err error, trace string)

// OnDone 处理完成事件的函数
type OnDone func()

// ============================================================================
// 工具函数
// ============================================================================

// CreateData 创建数据通知
func CreateData(value interface{}) Notification {
	return Notification{Kind: KindData, Value: value}
}

// CreateError 创建错误通知，自动捕获当前调用栈
func CreateError(err error) Notification {
	return Notification{Kind: KindError, Err: err, Trace: CaptureTrace()}
}

// CreateErrorTrace 创建带调用栈的错误通知
func CreateErrorTrace(err error, trace string) Notification {
	return Notification{Kind: KindError, Err: err, Trace: trace}
}

// CreateDone 创建完成通知
func CreateDone() Notification {
	return Notification{Kind: KindDone}
}

// CaptureTrace 捕获当前调用栈，用于错误通知
func CaptureTrace() string {
	return string(debug.Stack())
}
