package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// snapshotModel 把整份账本存成 sqlite 一行，复杂字段用 JSON 列。
type snapshotModel struct {
	TraderID      string         `gorm:"column:trader_id;primaryKey"`
	SchemaVersion int            `gorm:"column:schema_version"`
	Document      datatypes.JSON `gorm:"column:document;type:TEXT"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (snapshotModel) TableName() string { return "ledger_snapshots" }

// GormRepository 用 Gorm + SQLite 持久化账本快照。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(path string) (*GormRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm repository: sqlite 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建 sqlite 目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&snapshotModel{}); err != nil {
		return nil, err
	}
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) Load(traderID string) (*Snapshot, error) {
	var row snapshotModel
	err := r.db.First(&row, "trader_id = ?", traderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取快照行失败 (%s): %w", traderID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(row.Document, &snap); err != nil {
		return nil, fmt.Errorf("解析快照行失败 (%s): %w", traderID, err)
	}
	return &snap, nil
}

func (r *GormRepository) Save(snap *Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.TraderID) == "" {
		return fmt.Errorf("快照缺少 trader_id")
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败 (%s): %w", snap.TraderID, err)
	}
	row := snapshotModel{
		TraderID:      snap.TraderID,
		SchemaVersion: snap.SchemaVersion,
		Document:      datatypes.JSON(doc),
		UpdatedAt:     time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trader_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (r *GormRepository) Delete(traderID string) error {
	return r.db.Delete(&snapshotModel{}, "trader_id = ?", traderID).Error
}

func (r *GormRepository) List() ([]string, error) {
	var ids []string
	if err := r.db.Model(&snapshotModel{}).Pluck("trader_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Close 关闭底层连接。
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
