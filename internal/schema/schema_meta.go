package schema

import "time"

// SchemaMeta 单行表 (ID=1)，记录已执行到的迁移版本
type SchemaMeta struct {
	ID            int       `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null;default:0"`
	AppVersion    string    `gorm:"size:32"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
