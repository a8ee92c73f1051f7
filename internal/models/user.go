package models

// UserRole 定义了用户在系统中的角色。
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// Valid 报告角色是否为已知角色。
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User 代表用户目录中的一条记录（管理员、教师或学生）。
// ID 是业务 ID（例如学生的学籍号），由应用生成，不是数据库自增 ID。
type User struct {
	ID           string   `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name         string   `gorm:"type:varchar(100);not null" json:"name"`
	Email        string   `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	PasswordHash string   `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	Role         UserRole `gorm:"type:varchar(20);not null;index" json:"role"`
	ClassName    string   `gorm:"type:varchar(50)" json:"className,omitempty"` // 学生班级，例如 "10-A"
	Blocked      bool     `gorm:"default:false" json:"blocked,omitempty"`
	Timestamps
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "profiles"
}
