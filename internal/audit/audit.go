// Package audit 把每条决策追加写入 JSONL 审计日志，
// 留给离线复盘与问题回查，与账本互不依赖。
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arena/internal/engine"
)

// Envelope 是审计日志的一行。
type Envelope struct {
	Ts         time.Time      `json:"ts"`
	TraderID   string         `json:"trader_id"`
	Cycle      int            `json:"cycle"`
	TradingDay string         `json:"trading_day,omitempty"`
	Record     *engine.Record `json:"record"`
}

// Log 是追加写的 JSONL 审计日志。
type Log struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func NewLog(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建审计日志目录失败: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开审计日志失败: %w", err)
	}
	return &Log{path: path, file: f}, nil
}

func (l *Log) Append(env Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("序列化审计事件失败: %w", err)
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("写入审计事件失败: %w", err)
	}
	if _, err := l.file.WriteString("\n"); err != nil {
		return fmt.Errorf("写入换行失败: %w", err)
	}
	return nil
}

// LoadAll 从头读出全部审计行，读完把游标移回末尾以继续追加。
func (l *Log) LoadAll() ([]Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("定位日志起点失败: %w", err)
	}
	var events []Envelope
	scanner := bufio.NewScanner(l.file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, fmt.Errorf("解析第 %d 行失败: %w", lineNum, err)
		}
		events = append(events, env)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("扫描审计日志失败: %w", err)
	}
	if _, err := l.file.Seek(0, 2); err != nil {
		return nil, fmt.Errorf("定位日志末尾失败: %w", err)
	}
	return events, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
