// Notification tests for rxstream
package rxstream

import (
	"errors"
	"strings"
	"testing"
)

func TestNotification(t *testing.T) {
	t.Run("种类判定", func(t *testing.T) {
		data := CreateData(1)
		fail := CreateError(errors.New("boom"))
		done := CreateDone()

		if !data.IsData() || data.IsTerminal() {
			t.Error("数据事件不应该是终止事件")
		}
		if !fail.IsError() || !fail.IsTerminal() {
			t.Error("错误事件应该是终止事件")
		}
		if !done.IsDone() || !done.IsTerminal() {
			t.Error("完成事件应该是终止事件")
		}
	})

	t.Run("错误事件自动附带调用栈", func(t *testing.T) {
		n := CreateError(errors.New("boom"))
		if n.Trace == "" {
			t.Error("期望错误事件携带调用栈")
		}
		if !strings.Contains(n.Trace, "goroutine") {
			t.Errorf("期望调用栈包含goroutine信息，但得到 %q", n.Trace)
		}
	})

	t.Run("显式调用栈优先", func(t *testing.T) {
		n := CreateErrorTrace(errors.New("boom"), "custom trace")
		if n.Trace != "custom trace" {
			t.Errorf("期望保留显式调用栈，但得到 %q", n.Trace)
		}
	})

	t.Run("种类的字符串表示", func(t *testing.T) {
		cases := map[NotificationKind]string{
			KindData:  "Data",
			KindError: "Error",
			KindDone:  "Done",
		}
		for kind, want := range cases {
			if got := kind.String(); got != want {
				t.Errorf("期望 %q，但得到 %q", want, got)
			}
		}
	})
}
