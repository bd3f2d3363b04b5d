package forward

import (
	"strings"

	"forward_bot/internal/telegram/models"
)

// ShouldForward 判定消息是否通过用户过滤规则
// 纯函数：相同输入必然得到相同结果，计数由调用方负责
func ShouldForward(msg *models.Message, cfg *models.UserConfig) bool {
	if !kindAllowed(msg, cfg.Filters) {
		return false
	}
	if !sizeAllowed(msg, cfg) {
		return false
	}
	if !extensionAllowed(msg, cfg) {
		return false
	}
	return keywordAllowed(msg, cfg)
}

// kindAllowed 按类型开关判定
// 没有任何开关启用时放行全部（历史配置依赖默认放行），
// 图片+文字组合规则与单类型开关是并列关系，命中任意一条即放行
func kindAllowed(msg *models.Message, f models.KindFilters) bool {
	if !f.AnyEnabled() {
		return true
	}

	if f.ImageText && msg.MessageType == models.MessageTypePhoto && hasTextPayload(msg) {
		return true
	}

	switch msg.MessageType {
	case models.MessageTypeText:
		return f.Text
	case models.MessageTypePhoto:
		return f.Photo
	case models.MessageTypeVideo:
		return f.Video
	case models.MessageTypeDocument:
		return f.Document
	case models.MessageTypeAudio:
		return f.Audio
	case models.MessageTypeVoice:
		return f.Voice
	case models.MessageTypeAnimation:
		return f.Animation
	case models.MessageTypeSticker:
		return f.Sticker
	case models.MessageTypePoll:
		return f.Poll
	default:
		return false
	}
}

func hasTextPayload(msg *models.Message) bool {
	return strings.TrimSpace(msg.Text) != "" || strings.TrimSpace(msg.Caption) != ""
}

// sizeAllowed 大小过滤，只作用于携带可测量媒体的消息
func sizeAllowed(msg *models.Message, cfg *models.UserConfig) bool {
	if cfg.FileSizeMB <= 0 || cfg.SizeLimit == models.SizeLimitUnset {
		return true
	}
	if msg.MediaFileSize <= 0 {
		return true
	}

	sizeMB := msg.SizeMB()
	switch cfg.SizeLimit {
	case models.SizeLimitMoreThan:
		// 仅保留大于阈值的
		return sizeMB > cfg.FileSizeMB
	case models.SizeLimitLessThan:
		// 仅保留小于阈值的
		return sizeMB < cfg.FileSizeMB
	default:
		return true
	}
}

// extensionAllowed 扩展名黑名单，只作用于带文件名的 document
func extensionAllowed(msg *models.Message, cfg *models.UserConfig) bool {
	denied := cfg.NormalizedExtensions()
	if len(denied) == 0 {
		return true
	}
	if msg.MessageType != models.MessageTypeDocument || msg.MediaFileName == "" {
		return true
	}

	name := strings.ToLower(msg.MediaFileName)
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return true
	}
	ext := name[idx+1:]

	for _, d := range denied {
		if ext == d {
			return false
		}
	}
	return true
}

// keywordAllowed 关键词白名单
// 配置了关键词时，消息的文本/说明/文件名必须命中其中之一，
// 没有可匹配文本的消息直接拒绝
func keywordAllowed(msg *models.Message, cfg *models.UserConfig) bool {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return true
	}

	var text string
	switch {
	case msg.Text != "":
		text = msg.Text
	case msg.Caption != "":
		text = msg.Caption
	case msg.MediaFileName != "":
		text = msg.MediaFileName
	}
	if text == "" {
		return false
	}

	text = strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DedupKey 去重键：用户开启去重且消息携带稳定内容标识时返回该标识
// 空串表示这条消息不参与去重
func DedupKey(msg *models.Message, cfg *models.UserConfig) string {
	if !cfg.SkipDuplicate {
		return ""
	}
	if !msg.HasMedia() {
		return ""
	}
	return msg.MediaUniqueID
}
