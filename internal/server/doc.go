// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道。API 端口与 metrics 端口各使用一个 Manager。
  - Config：服务器配置，包含名称、监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务；监听 ":0" 时
    Addr 返回实际端口。
  - 优雅关闭：Shutdown 在配置的超时内排空进行中的生成请求。
  - 信号监听：WaitForShutdown 同时监控多个 Manager，收到
    SIGINT/SIGTERM、任一服务异常退出或 ctx 取消后统一关闭。
*/
package server
