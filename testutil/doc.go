// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 FusionFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 可注入延迟: SleepRecorder 记录轮询请求的等待时长而不真正休眠，
    可在指定调用后取消上下文
  - 断言工具: AssertEventuallyTrue / AssertJSONEqual / AssertContains
  - 数据工具: MustJSON
  - 图像样例: PNGBytes / JPEGBytes / GIFBytes / WebPBytes 生成带正确魔数的
    最小图像字节，Base64 用于构造请求体

# 使用示例

	rec := &testutil.SleepRecorder{}
	poller := image.NewPoller(cfg, logger, image.WithSleepFunc(rec.Sleep))
	...
	assert.Len(t, rec.Delays(), 3)
*/
package testutil
