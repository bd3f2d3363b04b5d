package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 大小过滤方向
const (
	SizeLimitUnset    = ""          // 不启用大小过滤
	SizeLimitMoreThan = "more_than" // 仅保留大于阈值的
	SizeLimitLessThan = "less_than" // 仅保留小于阈值的
)

// KindFilters 按消息类型的独立开关
// 所有开关都为 false 时放行全部类型（历史配置依赖这个默认放行语义）
type KindFilters struct {
	Text      bool `bson:"text"`
	Photo     bool `bson:"photo"`
	Video     bool `bson:"video"`
	Document  bool `bson:"document"`
	Audio     bool `bson:"audio"`
	Voice     bool `bson:"voice"`
	Animation bool `bson:"animation"`
	Sticker   bool `bson:"sticker"`
	Poll      bool `bson:"poll"`
	ImageText bool `bson:"image_text"` // 组合过滤：图片且带文字
}

// AnyEnabled 是否有任意一个类型开关被启用
func (f KindFilters) AnyEnabled() bool {
	return f.Text || f.Photo || f.Video || f.Document || f.Audio ||
		f.Voice || f.Animation || f.Sticker || f.Poll || f.ImageText
}

// UserConfig 每用户转发配置
// 任务启动时读取一次并在任务期间保持不变，运行中修改配置不影响在途任务
type UserConfig struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	UserID int64              `bson:"user_id"`

	Filters       KindFilters `bson:"filters"`
	Caption       *string     `bson:"caption,omitempty"`   // 自定义说明文字，支持 {caption} 占位符
	ButtonText    string      `bson:"button_text,omitempty"`
	ButtonURL     string      `bson:"button_url,omitempty"`
	ForwardTag    bool        `bson:"forward_tag"`     // 纯文本消息允许带转发标记批量转发
	Protect       bool        `bson:"protect"`         // 禁止二次转发
	SkipDuplicate bool        `bson:"skip_duplicate"`  // 按媒体内容标识去重
	FileSizeMB    float64     `bson:"file_size"`       // 大小阈值（MB），0 表示不限制
	SizeLimit     string      `bson:"size_limit"`      // more_than / less_than / 空
	Extensions    []string    `bson:"extensions,omitempty"` // 扩展名黑名单
	Keywords      []string    `bson:"keywords,omitempty"`   // 关键词白名单
	FTMMode       bool        `bson:"ftm_mode"`        // 附加来源链接按钮和说明

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// DefaultUserConfig 返回默认配置
// 默认值只在这里定义一次，Repository 加载不到记录时返回它
func DefaultUserConfig(userID int64) *UserConfig {
	return &UserConfig{
		UserID:        userID,
		Filters:       KindFilters{},
		SkipDuplicate: true,
	}
}

// HasButton 是否配置了自定义按钮
func (c *UserConfig) HasButton() bool {
	return c.ButtonText != "" && c.ButtonURL != ""
}

// NormalizedExtensions 归一化后的扩展名黑名单（小写、去掉前导点）
func (c *UserConfig) NormalizedExtensions() []string {
	out := make([]string, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}
