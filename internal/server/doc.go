// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、优雅关闭与
异常退出传播。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener。serve 命令为 API 与
    /metrics 各启动一个实例。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与关闭超时。
    API 服务的 WriteTimeout 必须覆盖单次审议的 60 秒上限。

# 主要能力

  - Start 在后台 goroutine 中服务，Addr 返回实际监听地址（支持 :0）。
  - Wait 在 ctx 取消（通常来自 signal.NotifyContext）或服务异常退出后
    执行优雅关闭。
  - Errors 返回异步错误通道。
*/
package server
