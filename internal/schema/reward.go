package schema

import "time"

// Reward 每个同步批次一次的积分/徽章发放，创建后不可变
type Reward struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	BatchID   string    `gorm:"size:36;index" json:"batch_id"`
	Points    int       `gorm:"not null;default:0" json:"points"`
	Badges    JSONArray `gorm:"type:text" json:"badges"`
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedAt time.Time `gorm:"index;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Reward) TableName() string {
	return "rewards"
}
