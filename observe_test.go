// Observability operator tests for rxstream
package rxstream

import (
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestMetered(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("rxstream/test")

	t.Run("事件原样透传", func(t *testing.T) {
		metered, err := Metered(Range(1, 3), meter, "pipeline", RealClock)
		if err != nil {
			t.Fatalf("创建仪表失败: %v", err)
		}

		r := newRecorder()
		r.record(metered)

		expectValues(t, r, []interface{}{1, 2, 3})
		expectCompleted(t, r)
	})

	t.Run("错误事件同样透传", func(t *testing.T) {
		boom := errors.New("boom")
		metered, err := Metered(Error(boom), meter, "pipeline", RealClock)
		if err != nil {
			t.Fatalf("创建仪表失败: %v", err)
		}

		r := newRecorder()
		r.record(metered)

		errs := r.Errors()
		if len(errs) != 1 || !errors.Is(errs[0], boom) {
			t.Errorf("期望收到错误 %v，但得到 %v", boom, errs)
		}
	})

	t.Run("延迟用注入时钟计量", func(t *testing.T) {
		clk := NewFakeClock(time.Unix(0, 0))
		subject := NewBroadcastSubject()
		metered, err := Metered(subject, meter, "pipeline", clk)
		if err != nil {
			t.Fatalf("创建仪表失败: %v", err)
		}

		r := newRecorder()
		sub := r.record(metered)
		defer sub.Cancel()

		// 假时钟上没有挂起的定时器，数据事件之间推进时间
		// 不会触发任何回调，只改变Now的读数
		subject.Emit(1)
		clk.Step(7 * time.Millisecond)
		subject.Emit(2)
		subject.Complete()

		expectValues(t, r, []interface{}{1, 2})
		expectCompleted(t, r)
		if clk.HasWaiters() {
			t.Error("期望计量不向时钟注册定时器，但存在等待者")
		}
	})
}
