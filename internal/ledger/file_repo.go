package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileRepository 每个交易员一份 JSON 文档，写入走临时文件 + rename，
// 避免进程中途退出留下半截文件。
type FileRepository struct {
	dir string
	mu  sync.Mutex
}

func NewFileRepository(dir string) (*FileRepository, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("ledger 目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建 ledger 目录失败: %w", err)
	}
	return &FileRepository{dir: dir}, nil
}

func (r *FileRepository) pathFor(traderID string) string {
	return filepath.Join(r.dir, traderID+".json")
}

func (r *FileRepository) Load(traderID string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := os.ReadFile(r.pathFor(traderID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("读取快照失败 (%s): %w", traderID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析快照失败 (%s): %w", traderID, err)
	}
	return &snap, nil
}

func (r *FileRepository) Save(snap *Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.TraderID) == "" {
		return fmt.Errorf("快照缺少 trader_id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化快照失败 (%s): %w", snap.TraderID, err)
	}
	final := r.pathFor(snap.TraderID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入临时快照失败 (%s): %w", snap.TraderID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("替换快照文件失败 (%s): %w", snap.TraderID, err)
	}
	return nil
}

func (r *FileRepository) Delete(traderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := os.Remove(r.pathFor(traderID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除快照失败 (%s): %w", traderID, err)
	}
	return nil
}

func (r *FileRepository) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("枚举 ledger 目录失败: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
