// Observability operator for rxstream
// 可观测操作符：把事件计数接入OpenTelemetry metric接口，不改变数据流
package rxstream

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metered 透传source的全部事件，同时按事件类别累加计数器：
// <name>.data / <name>.error / <name>.done，并把相邻数据事件的间隔
// 记录到 <name>.latency_ms 直方图，间隔用注入的clk计量
// 仪表创建失败时返回错误，此时不订阅source
func Metered(source Source, meter metric.Meter, name string, clk Clock) (Source, error) {
	dataCounter, err := meter.Int64Counter(name+".data", metric.WithDescription("count of data events"))
	if err != nil {
		return nil, err
	}
	errorCounter, err := meter.Int64Counter(name+".error", metric.WithDescription("count of error events"))
	if err != nil {
		return nil, err
	}
	doneCounter, err := meter.Int64Counter(name+".done", metric.WithDescription("count of completions"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Int64Histogram(name+".latency_ms", metric.WithDescription("latency between data events"))
	if err != nil {
		return nil, err
	}

	return NewSource(func(observer Observer) Subscription {
		ctx := context.Background()
		var mu sync.Mutex
		var last time.Time

		return source.Subscribe(func(n Notification) {
			switch n.Kind {
			case KindData:
				mu.Lock()
				now := clk.Now()
				if !last.IsZero() {
					latency.Record(ctx, now.Sub(last).Milliseconds())
				}
				last = now
				mu.Unlock()
				dataCounter.Add(ctx, 1)
			case KindError:
				errorCounter.Add(ctx, 1)
			case KindDone:
				doneCounter.Add(ctx, 1)
			}
			observer(n)
		})
	}), nil
}
