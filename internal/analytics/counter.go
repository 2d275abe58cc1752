// Package analytics 统计已保存消息的词频
package analytics

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// WordCount 词及出现次数
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Counter 并发安全的词频计数器
type Counter struct {
	mu        sync.Mutex
	counts    map[string]int
	processed atomic.Int64
}

// NewCounter 创建计数器
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Record 统计一条消息文本，空文本和空消息占位符不计入
func (c *Counter) Record(text string) {
	if strings.TrimSpace(text) == "" || text == models.EmptyMessageText {
		return
	}
	c.processed.Add(1)

	words := strings.Fields(strings.ToLower(text))
	c.mu.Lock()
	for _, w := range words {
		c.counts[w]++
	}
	c.mu.Unlock()
}

// Processed 已统计的消息数
func (c *Counter) Processed() int64 {
	return c.processed.Load()
}

// Top 出现次数最多的 n 个词，次数相同时按字母顺序
func (c *Counter) Top(n int) []WordCount {
	if n <= 0 {
		return nil
	}

	c.mu.Lock()
	all := make([]WordCount, 0, len(c.counts))
	for w, cnt := range c.counts {
		all = append(all, WordCount{Word: w, Count: cnt})
	}
	c.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Word < all[j].Word
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}
