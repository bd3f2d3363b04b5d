package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 角色常量
const (
	RoleOwner = "owner" // 最高权限，由 BOT_OWNER_IDS 配置
	RoleUser  = "user"  // 普通用户
)

// User 用户模型
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	TelegramID   int64              `bson:"telegram_id"`             // Telegram 用户 ID（唯一）
	Username     string             `bson:"username,omitempty"`      // @username
	FirstName    string             `bson:"first_name"`              // 名字
	LastName     string             `bson:"last_name,omitempty"`     // 姓氏
	LanguageCode string             `bson:"language_code,omitempty"` // 语言代码
	Role         string             `bson:"role"`                    // 角色：owner/user
	CreatedAt    time.Time          `bson:"created_at"`              // 创建时间
	UpdatedAt    time.Time          `bson:"updated_at"`              // 更新时间
	LastActiveAt time.Time          `bson:"last_active_at"`          // 最后活跃时间
}

// IsOwner 是否为 Owner
func (u *User) IsOwner() bool {
	return u.Role == RoleOwner
}
