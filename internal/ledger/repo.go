package ledger

import "errors"

// ErrNotFound 表示该交易员还没有落盘快照。
var ErrNotFound = errors.New("ledger: snapshot not found")

// Repository 抽象快照的存取介质（JSON 文件、sqlite 行），
// 换存储不需要动账本逻辑。
type Repository interface {
	// Load 读取某交易员的快照，不存在时返回 ErrNotFound。
	Load(traderID string) (*Snapshot, error)
	// Save 整体写入某交易员的快照。
	Save(snap *Snapshot) error
	// Delete 删除某交易员的快照，不存在时为空操作。
	Delete(traderID string) error
	// List 返回已有快照的交易员 ID。
	List() ([]string, error)
}
