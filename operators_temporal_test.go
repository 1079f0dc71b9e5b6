// Temporal operator tests for rxstream
// 时序操作符测试：全部基于假时钟，推进由测试显式控制
package rxstream

import (
	"errors"
	"testing"
	"time"
)

func newTestClock() *FakeClock {
	return NewFakeClock(time.Unix(0, 0))
}

// ============================================================================
// Interval / Timer 工厂
// ============================================================================

func TestIntervalFactory(t *testing.T) {
	t.Run("按周期发射递增序列", func(t *testing.T) {
		clk := newTestClock()
		r := newRecorder()
		sub := r.record(Interval(10*time.Millisecond, clk))

		clk.Step(10 * time.Millisecond)
		clk.Step(10 * time.Millisecond)
		clk.Step(10 * time.Millisecond)

		expectValues(t, r, []interface{}{int64(0), int64(1), int64(2)})
		if r.DoneCount() != 0 {
			t.Error("Interval不应该完成")
		}

		sub.Cancel()
		clk.Step(10 * time.Millisecond)
		if len(r.Values()) != 3 {
			t.Error("取消之后不应该再发射")
		}
	})
}

func TestTimerFactory(t *testing.T) {
	t.Run("延迟后发射单值并完成", func(t *testing.T) {
		clk := newTestClock()
		r := newRecorder()
		r.record(Timer("x", 10*time.Millisecond, clk))

		clk.Step(5 * time.Millisecond)
		if len(r.Values()) != 0 {
			t.Error("延迟未到不应该发射")
		}
		clk.Step(5 * time.Millisecond)

		expectValues(t, r, []interface{}{"x"})
		expectCompleted(t, r)
	})

	t.Run("取消阻止发射", func(t *testing.T) {
		clk := newTestClock()
		r := newRecorder()
		sub := r.record(Timer("x", 10*time.Millisecond, clk))

		sub.Cancel()
		clk.Step(10 * time.Millisecond)

		expectValues(t, r, nil)
		if r.DoneCount() != 0 {
			t.Error("取消之后不应该完成")
		}
	})
}

// ============================================================================
// Debounce
// ============================================================================

func TestDebounceTime(t *testing.T) {
	t.Run("静默窗口走满才发射最后的值", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(DebounceTime(source, 10*time.Millisecond, clk))

		source.Emit(1)
		clk.Step(5 * time.Millisecond)
		source.Emit(2)
		// 窗口被2重置，1被丢弃
		clk.Step(10 * time.Millisecond)

		expectValues(t, r, []interface{}{2})

		source.Emit(3)
		clk.Step(10 * time.Millisecond)
		source.Complete()

		expectValues(t, r, []interface{}{2, 3})
		expectCompleted(t, r)
	})

	t.Run("完成时冲洗挂起值", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(DebounceTime(source, 10*time.Millisecond, clk))

		source.Emit("pending")
		source.Complete()

		expectValues(t, r, []interface{}{"pending"})
		expectCompleted(t, r)
	})
}

// ============================================================================
// Throttle
// ============================================================================

func TestThrottleTime(t *testing.T) {
	t.Run("前沿模式窗口期间的值被吞掉", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(ThrottleTime(source, 10*time.Millisecond, clk, false))

		source.Emit(1)
		source.Emit(2)
		source.Emit(3)
		clk.Step(10 * time.Millisecond)
		source.Emit(4)
		source.Complete()

		expectValues(t, r, []interface{}{1, 4})
		expectCompleted(t, r)
	})

	t.Run("尾沿模式关窗时发射保留值并重新开窗", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(ThrottleTime(source, 10*time.Millisecond, clk, true))

		source.Emit(1)
		source.Emit(2)
		source.Emit(3)
		clk.Step(10 * time.Millisecond)

		expectValues(t, r, []interface{}{1, 3})

		// 3重新开窗，窗口内的值继续被保留
		source.Emit(4)
		source.Complete()

		expectValues(t, r, []interface{}{1, 3, 4})
		expectCompleted(t, r)
	})
}

// ============================================================================
// Buffer 家族
// ============================================================================

func TestBuffer(t *testing.T) {
	t.Run("触发器划分批次", func(t *testing.T) {
		source := NewBroadcastSubject()
		trigger := NewBroadcastSubject()
		r := newRecorder()
		r.record(Buffer(source, trigger))

		source.Emit(1)
		source.Emit(2)
		trigger.Emit(nil)
		trigger.Emit(nil)
		source.Emit(3)
		source.Complete()

		want := []interface{}{
			[]interface{}{1, 2},
			[]interface{}{},
			[]interface{}{3},
		}
		expectValues(t, r, want)
		expectCompleted(t, r)
	})
}

func TestBufferTime(t *testing.T) {
	t.Run("按固定周期划分批次", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(BufferTime(source, 10*time.Millisecond, clk))

		source.Emit(1)
		source.Emit(2)
		clk.Step(10 * time.Millisecond)
		clk.Step(10 * time.Millisecond)

		want := []interface{}{
			[]interface{}{1, 2},
			[]interface{}{},
		}
		expectValues(t, r, want)
	})
}

func TestBufferTest(t *testing.T) {
	t.Run("谓词命中时冲洗当前批", func(t *testing.T) {
		r := newRecorder()
		r.record(BufferTest(Range(1, 5), func(value interface{}) bool {
			return value.(int)%2 == 0
		}))

		want := []interface{}{
			[]interface{}{1, 2},
			[]interface{}{3, 4},
			[]interface{}{5},
		}
		expectValues(t, r, want)
		expectCompleted(t, r)
	})
}

func TestBufferCount(t *testing.T) {
	t.Run("不重叠批次", func(t *testing.T) {
		r := newRecorder()
		r.record(BufferCount(Range(1, 5), 2, 0))

		want := []interface{}{
			[]interface{}{1, 2},
			[]interface{}{3, 4},
			[]interface{}{5},
		}
		expectValues(t, r, want)
		expectCompleted(t, r)
	})

	t.Run("重叠批次", func(t *testing.T) {
		r := newRecorder()
		r.record(BufferCount(Range(1, 5), 3, 2))

		want := []interface{}{
			[]interface{}{1, 2, 3},
			[]interface{}{3, 4, 5},
			[]interface{}{5},
		}
		expectValues(t, r, want)
		expectCompleted(t, r)
	})
}

// ============================================================================
// Sample
// ============================================================================

func TestSample(t *testing.T) {
	t.Run("触发时发射脏的最近值", func(t *testing.T) {
		source := NewBroadcastSubject()
		trigger := NewBroadcastSubject()
		r := newRecorder()
		r.record(Sample(source, trigger))

		trigger.Emit(nil)
		if len(r.Values()) != 0 {
			t.Error("数据尚未到来时触发不应该产生输出")
		}
		source.Emit(1)
		trigger.Emit(nil)
		trigger.Emit(nil)
		// 第二次触发时没有新数据，不重复发射
		source.Emit(2)
		source.Emit(3)
		trigger.Emit(nil)
		source.Complete()

		expectValues(t, r, []interface{}{1, 3})
		expectCompleted(t, r)
	})
}

// ============================================================================
// Paced
// ============================================================================

func TestPaced(t *testing.T) {
	t.Run("事件逐个延迟投递", func(t *testing.T) {
		clk := newTestClock()
		r := newRecorder()
		r.record(Paced(FromSlice([]interface{}{1, 2}), 10*time.Millisecond, clk))

		if len(r.Values()) != 0 {
			t.Error("延迟未到不应该投递")
		}
		clk.Step(10 * time.Millisecond)
		expectValues(t, r, []interface{}{1})
		clk.Step(10 * time.Millisecond)
		expectValues(t, r, []interface{}{1, 2})
		if r.DoneCount() != 0 {
			t.Error("完成事件也应该排队延迟")
		}
		clk.Step(10 * time.Millisecond)

		expectCompleted(t, r)
	})

	t.Run("错误不排队立即转发", func(t *testing.T) {
		boom := errors.New("boom")
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(Paced(source, 10*time.Millisecond, clk))

		source.Emit(1)
		source.Fail(boom, "")

		errs := r.Errors()
		if len(errs) != 1 || !errors.Is(errs[0], boom) {
			t.Errorf("期望立即收到错误 %v，但得到 %v", boom, errs)
		}
		clk.Step(10 * time.Millisecond)
		if len(r.Values()) != 0 {
			t.Error("错误终止后排队的数据应该被丢弃")
		}
	})
}

// ============================================================================
// TimeInterval / Timestamp
// ============================================================================

func TestTimeInterval(t *testing.T) {
	t.Run("记录相邻事件的间隔", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(TimeInterval(source, clk))

		clk.Step(5 * time.Millisecond)
		source.Emit("a")
		clk.Step(3 * time.Millisecond)
		source.Emit("b")
		source.Complete()

		want := []interface{}{
			TimeIntervalValue{Value: "a", Interval: 5 * time.Millisecond},
			TimeIntervalValue{Value: "b", Interval: 3 * time.Millisecond},
		}
		expectValues(t, r, want)
		expectCompleted(t, r)
	})
}

func TestTimestamp(t *testing.T) {
	t.Run("附上发射时刻", func(t *testing.T) {
		clk := newTestClock()
		source := NewBroadcastSubject()
		r := newRecorder()
		r.record(Timestamp(source, clk))

		clk.Step(7 * time.Millisecond)
		source.Emit("a")
		source.Complete()

		want := []interface{}{
			TimestampedValue{Value: "a", Timestamp: time.Unix(0, 0).Add(7 * time.Millisecond)},
		}
		expectValues(t, r, want)
		expectCompleted(t, r)
	})
}
