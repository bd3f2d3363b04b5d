package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 消息类型常量
const (
	MessageTypeText      = "text"
	MessageTypePhoto     = "photo"
	MessageTypeVideo     = "video"
	MessageTypeDocument  = "document"
	MessageTypeVoice     = "voice"
	MessageTypeAudio     = "audio"
	MessageTypeSticker   = "sticker"
	MessageTypeAnimation = "animation"
	MessageTypePoll      = "poll"
	MessageTypeService   = "service"
)

// Message 归档消息模型
// Bot 收到的源频道/群组消息会镜像到这里，转发引擎按区间遍历归档
type Message struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	TelegramMessageID int64              `bson:"telegram_message_id"` // Telegram 消息 ID
	ChatID            int64              `bson:"chat_id"`             // 所属聊天 ID
	UserID            int64              `bson:"user_id"`             // 发送者 ID（频道消息可能为 0）

	// 消息内容
	MessageType string `bson:"message_type"`      // 消息类型
	Text        string `bson:"text,omitempty"`    // 文本内容
	Caption     string `bson:"caption,omitempty"` // 媒体说明文字

	// 媒体信息
	MediaFileID       string `bson:"media_file_id,omitempty"`        // 文件 ID
	MediaUniqueID     string `bson:"media_unique_id,omitempty"`      // 稳定内容标识（去重用）
	MediaFileName     string `bson:"media_file_name,omitempty"`      // 文件名（document 类型）
	MediaFileSize     int64  `bson:"media_file_size,omitempty"`      // 文件大小（字节）
	MediaMimeType     string `bson:"media_mime_type,omitempty"`      // MIME 类型

	// 时间信息
	SentAt    time.Time `bson:"sent_at"`    // 发送时间
	CreatedAt time.Time `bson:"created_at"` // 记录创建时间
	UpdatedAt time.Time `bson:"updated_at"` // 记录更新时间
}

// HasMedia 是否携带媒体载荷
func (m *Message) HasMedia() bool {
	switch m.MessageType {
	case MessageTypePhoto, MessageTypeVideo, MessageTypeDocument,
		MessageTypeVoice, MessageTypeAudio, MessageTypeSticker, MessageTypeAnimation:
		return true
	default:
		return false
	}
}

// IsService 是否为服务消息（入群提示等，不可复制）
func (m *Message) IsService() bool {
	return m.MessageType == MessageTypeService
}

// SizeMB 媒体大小（MB），无媒体时为 0
func (m *Message) SizeMB() float64 {
	if m.MediaFileSize <= 0 {
		return 0
	}
	return float64(m.MediaFileSize) / (1024 * 1024)
}
