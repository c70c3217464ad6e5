package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite" // 纯 Go SQLite 驱动
	"github.com/yuqie6/PodPulse/internal/pkg/buildinfo"
	"github.com/yuqie6/PodPulse/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrSafeMode 迁移失败后拒绝写入
var ErrSafeMode = errors.New("数据库处于安全模式")

// Database 数据库连接与迁移状态
type Database struct {
	DB             *gorm.DB
	SafeMode       bool
	SchemaVersion  int
	MigrationError string
}

// sqlite 连接参数；busy_timeout 让 Agent 与 CLI 并发写入时排队
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// migration 按版本号顺序执行，每步成功后写回 schema_meta
type migration struct {
	version int
	name    string
	apply   func(*gorm.DB) error
}

var migrations = []migration{
	{version: 1, name: "base tables", apply: AutoMigrate},
}

func latestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// NewDatabase 打开 sqlite 并迁移；迁移失败不返回错误而是进入安全模式
func NewDatabase(dbPath string) (*Database, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("执行 %s 失败: %w", p, err)
		}
	}

	d := &Database{DB: db}
	if err := d.migrate(); err != nil {
		d.SafeMode = true
		d.MigrationError = err.Error()
		slog.Error("数据库迁移失败，进入安全模式", "error", err)
	}
	slog.Info("数据库初始化成功", "path", dbPath, "schema_version", d.SchemaVersion, "safe_mode", d.SafeMode)
	return d, nil
}

// AutoMigrate 创建或补齐全部表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.SchemaMeta{},
		&schema.User{},
		&schema.Pod{},
		&schema.PodMember{},
		&schema.PodRepo{},
		&schema.PodRoadmap{},
		&schema.Activity{},
		&schema.Reward{},
	)
}

func (d *Database) migrate() error {
	if err := d.DB.AutoMigrate(&schema.SchemaMeta{}); err != nil {
		return fmt.Errorf("创建 schema_meta 失败: %w", err)
	}

	var meta schema.SchemaMeta
	err := d.DB.First(&meta, 1).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		meta = schema.SchemaMeta{ID: 1}
		if err := d.DB.Create(&meta).Error; err != nil {
			return fmt.Errorf("初始化 schema_meta 失败: %w", err)
		}
	case err != nil:
		return fmt.Errorf("读取 schema_meta 失败: %w", err)
	}

	d.SchemaVersion = meta.SchemaVersion
	if meta.SchemaVersion > latestSchemaVersion() {
		return fmt.Errorf("数据库 schema_version=%d 高于当前程序支持的版本=%d", meta.SchemaVersion, latestSchemaVersion())
	}

	for _, m := range migrations {
		if m.version <= meta.SchemaVersion {
			continue
		}
		if err := m.apply(d.DB); err != nil {
			return fmt.Errorf("迁移 v%d (%s) 失败: %w", m.version, m.name, err)
		}
		meta.SchemaVersion = m.version
		meta.AppVersion = buildinfo.Version
		if err := d.DB.Save(&meta).Error; err != nil {
			return fmt.Errorf("写入 schema_meta 失败: %w", err)
		}
		d.SchemaVersion = m.version
		slog.Info("数据库迁移完成", "version", m.version, "step", m.name)
	}
	return nil
}

// Writable 安全模式下返回 ErrSafeMode
func (d *Database) Writable() error {
	if d == nil || d.DB == nil {
		return errors.New("数据库未初始化")
	}
	if d.SafeMode {
		return fmt.Errorf("%w: %s", ErrSafeMode, d.MigrationError)
	}
	return nil
}

// Close 关闭连接
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
