// Clock abstraction for rxstream
// 时钟抽象，时间一律注入而非直接读取time包，便于确定性测试
package rxstream

import "github.com/zoobzio/clockz"

// Clock 时钟接口，提供时间操作
type Clock = clockz.Clock

// RealClock 默认时钟，基于标准time包
var RealClock Clock = clockz.RealClock
