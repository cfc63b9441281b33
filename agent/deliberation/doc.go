// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 deliberation 实现多人格审议（共识）引擎：三个人格并发提出方案，
在有限轮次内互相批判、投票，未达成共识时各自修订，最终由独立的
合成声音给出单一回答。

# 流程

	Proposing → (Critiquing → Voting → Refining)* → Synthesizing → Done

  - 每个阶段对活跃人格并发扇出，等待全部返回后再推进（完整屏障）。
  - 失败的人格从活跃集合中永久移除，该阶段的部分输出被丢弃。
  - 投票文本以 "yes" 开头（忽略大小写与空白）记为 Yes，其余记为 No。
  - 共识规则为严格多数：Yes 数 ≥ n/2+1。
  - 活跃人格少于 Config.MinVotingPersonas 时，本轮不投票直接进入合成。
  - 最后一轮不做修订。

# 核心类型

  - Engine：控制器，Run 返回 Result 或两类错误之一：
    NoActivePersonasError（所有人格失败）与 SynthesisError（合成失败）。
  - Round / Result：只追加的审议记录。
  - Reporter：进度观察者，panic 会被捕获并记录。
  - CostRecorder：每次成功调用后的成本上报，由 ledger.Recorder 实现。

# 提示词

ProposalPrompt、CritiquePrompt、VotePrompt、RefinePrompt 与
SynthesisPrompt 均为纯函数。同伴方案按人格 key 做集合差计算，
与切片顺序无关。
*/
package deliberation
