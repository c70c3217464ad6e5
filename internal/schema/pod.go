package schema

import "time"

// 成员状态与角色
const (
	MemberAccepted = "accepted"
	MemberPending  = "pending"

	RoleLead   = "lead"
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Pod 团队
type Pod struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:100" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Pod) TableName() string {
	return "pods"
}

// PodMember User↔Pod 多对多关系；GithubUsername 用于提交归属
type PodMember struct {
	PodID          string    `gorm:"primaryKey;size:64" json:"pod_id"`
	UserID         string    `gorm:"primaryKey;size:64;index" json:"user_id"`
	Role           string    `gorm:"size:32;default:member" json:"role"`
	Status         string    `gorm:"size:32;default:accepted;index" json:"status"`
	GithubUsername string    `gorm:"size:100" json:"github_username"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// TableName 指定表名
func (PodMember) TableName() string {
	return "pod_members"
}

// IsLead 是否团队负责人
func (m PodMember) IsLead() bool {
	return m.Role == RoleLead || m.Role == RoleOwner
}

// PodRepo 团队关联的仓库
type PodRepo struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PodID     string    `gorm:"size:64;not null;uniqueIndex:uniq_pod_repo,priority:1" json:"pod_id"`
	Owner     string    `gorm:"size:100;not null;uniqueIndex:uniq_pod_repo,priority:2" json:"owner"`
	Name      string    `gorm:"size:100;not null;uniqueIndex:uniq_pod_repo,priority:3" json:"name"`
	LastSync  int64     `gorm:"default:0" json:"last_sync"` // Unix ms
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (PodRepo) TableName() string {
	return "pod_repos"
}

// FullName owner/name
func (r PodRepo) FullName() string {
	return r.Owner + "/" + r.Name
}

// PodRoadmap 团队路线图缓存；Stale=true 时下次查看重新生成
type PodRoadmap struct {
	PodID       string    `gorm:"primaryKey;size:64" json:"pod_id"`
	Content     string    `gorm:"type:text" json:"content"`
	Stale       bool      `gorm:"default:false" json:"stale"`
	GeneratedAt time.Time `json:"generated_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (PodRoadmap) TableName() string {
	return "pod_roadmaps"
}
