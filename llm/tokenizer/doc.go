// Package tokenizer 在后端没有返回 usage 时估算 token 数，
// 优先使用 tiktoken 精确计数，不可用时回退到 CJK 感知的字符估算。
package tokenizer
