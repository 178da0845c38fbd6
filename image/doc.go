// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 image 提供多服务商图像生成任务客户端，将最多两张带意图标记的输入图像
与一条文本指令组合为一次生成请求，并把各服务商的异构响应归一化为统一结果。

# 概述

本包屏蔽不同服务商（Google Gemini、OpenAI 图像接口、Black Forest Labs
Flux）在协议、鉴权方式和响应结构上的差异。同步服务商一次调用即返回图像，
异步服务商返回轮询地址，由 Poller 以固定间隔、有限次数轮询直至完成。

# 核心接口

  - Provider：服务商适配器接口（Name、SupportedAspectRatios、
    SupportedOutputFormats、Submit）。
  - AsyncProvider：需要轮询的适配器，额外提供 Await。
  - Generator：统一入口，按 engine 选择适配器并返回 GeneratedImage。
  - ResolveIntent：根据两张图像的 UsageIntent 计算主图、控制图与风格图。
  - Poller：有界轮询循环，可注入 SleepFunc 以便测试。

# 主要能力

  - 意图解析：reference_object、image_merge_primary、image_merge_secondary、
    style_transfer_target、object_replacement 五种意图，按固定优先级解析。
  - 多 Provider 适配：GeminiProvider、OpenAIProvider、FluxProvider。
  - 异步轮询：容忍中间态的异常响应，仅明确的失败状态或 HTTP 错误为终态。
  - 结果归一化：统一输出 base64 图像、MIME 类型、指令与 engine。
  - 错误分类：所有错误均为 *types.Error，携带错误码与上游 HTTP 状态。
  - 取消：所有阻塞操作接受 context.Context。
*/
package image
