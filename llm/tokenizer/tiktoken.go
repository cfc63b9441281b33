package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter 是统一的 token 计数接口.
type Counter interface {
	CountTokens(text string) (int, error)
	Name() string
}

// TiktokenCounter 使用 tiktoken 编码计数。编码在首次使用时加载（可能需要下载词表）。
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// 按模型名（去掉 vendor 前缀后）前缀匹配编码，未命中时使用 cl100k_base。
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-5", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
}

// EncodingForModel 返回模型对应的 tiktoken 编码名。
func EncodingForModel(model string) string {
	name := strings.ToLower(model)
	if _, rest, ok := strings.Cut(name, "/"); ok {
		name = rest
	}
	for _, m := range modelEncodings {
		if strings.HasPrefix(name, m.prefix) {
			return m.encoding
		}
	}
	return "cl100k_base"
}

// NewTiktokenCounter 为给定模型创建计数器.
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{encoding: EncodingForModel(model)}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenCounter) Name() string { return "tiktoken:" + t.encoding }

// FallbackCounter 先用 primary 计数，出错时使用 secondary。
type FallbackCounter struct {
	primary   Counter
	secondary Counter
}

func NewFallbackCounter(primary, secondary Counter) *FallbackCounter {
	return &FallbackCounter{primary: primary, secondary: secondary}
}

func (f *FallbackCounter) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.secondary.CountTokens(text)
}

func (f *FallbackCounter) Name() string { return f.primary.Name() + "|" + f.secondary.Name() }

// Registry 缓存每种编码的计数器，tiktoken 编码只加载一次。
type Registry struct {
	mu       sync.Mutex
	counters map[string]Counter
	offline  bool
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]Counter)}
}

// NewOfflineRegistry 只使用估算器，不会尝试下载 tiktoken 词表。
func NewOfflineRegistry() *Registry {
	return &Registry{counters: make(map[string]Counter), offline: true}
}

// ForModel 返回模型的计数器：tiktoken 优先，失败回退到估算器。
func (r *Registry) ForModel(model string) Counter {
	if r.offline {
		return NewEstimator()
	}
	encoding := EncodingForModel(model)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[encoding]; ok {
		return c
	}
	c := NewFallbackCounter(&TiktokenCounter{encoding: encoding}, NewEstimator())
	r.counters[encoding] = c
	return c
}
