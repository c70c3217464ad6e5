package schema

import "time"

// DefaultReliabilityScore 新用户的可靠度
const DefaultReliabilityScore = 100.0

// DynamicsMetrics 团队协作计数器，只由信誉引擎写入
type DynamicsMetrics struct {
	OnTimeRate      int `gorm:"default:100" json:"on_time_rate"`
	RescueCount     int `gorm:"default:0" json:"rescue_count"`
	MissedDeadlines int `gorm:"default:0" json:"missed_deadlines"`
	TotalCompleted  int `gorm:"default:0" json:"total_completed"`
}

// User 用户及其信誉字段
type User struct {
	ID               string          `gorm:"primaryKey;size:64" json:"id"`
	Name             string          `gorm:"size:100" json:"name"`
	Email            string          `gorm:"size:255;index" json:"email"`
	GithubUsername   string          `gorm:"size:100;index" json:"github_username"`
	GithubToken      string          `gorm:"size:255" json:"-"`
	TokenValid       bool            `gorm:"default:false" json:"token_valid"`
	ReliabilityScore float64         `gorm:"default:100" json:"reliability_score"`
	Dynamics         DynamicsMetrics `gorm:"embedded;embeddedPrefix:dyn_" json:"dynamics"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// NewUser 创建带默认信誉的新用户
func NewUser(id, name, email string) *User {
	return &User{
		ID:               id,
		Name:             name,
		Email:            email,
		ReliabilityScore: DefaultReliabilityScore,
		Dynamics:         DynamicsMetrics{OnTimeRate: 100},
	}
}
