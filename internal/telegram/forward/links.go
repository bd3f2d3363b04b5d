package forward

import (
	"fmt"
	"strings"

	"forward_bot/internal/telegram/models"

	botModels "github.com/go-telegram/bot/models"
)

// MessageLink 构造消息跳转链接
// 超级群/频道 ID 带 -100 前缀，链接里去掉前缀走 t.me/c/ 形式
func MessageLink(chatID int64, messageID int64) string {
	id := fmt.Sprintf("%d", chatID)
	if strings.HasPrefix(id, "-100") {
		return fmt.Sprintf("https://t.me/c/%s/%d", id[4:], messageID)
	}
	return fmt.Sprintf("https://t.me/%s/%d", id, messageID)
}

// AttributionCaption 在说明文字后追加来源链接
func AttributionCaption(caption, sourceLink string) string {
	suffix := fmt.Sprintf("\n\n📤 <b>来源:</b> <a href=\"%s\">原始消息</a>", sourceLink)
	if caption == "" {
		return strings.TrimSpace(suffix)
	}
	return caption + suffix
}

// AttributionButton 构造来源链接按钮
func AttributionButton(sourceLink string) *botModels.InlineKeyboardMarkup {
	return &botModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]botModels.InlineKeyboardButton{
			{{Text: "🔗 来源链接", URL: sourceLink}},
		},
	}
}

// CombineButtons 将来源按钮放在自定义按钮上方
func CombineButtons(attribution, custom *botModels.InlineKeyboardMarkup) *botModels.InlineKeyboardMarkup {
	if custom == nil {
		return attribution
	}
	if attribution == nil {
		return custom
	}

	rows := make([][]botModels.InlineKeyboardButton, 0, len(attribution.InlineKeyboard)+len(custom.InlineKeyboard))
	rows = append(rows, attribution.InlineKeyboard...)
	rows = append(rows, custom.InlineKeyboard...)
	return &botModels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CustomCaption 应用自定义说明文字
// {caption} 占位符替换为原说明文字；未配置时原样返回
func CustomCaption(original string, custom *string) string {
	if custom == nil {
		return original
	}
	if strings.Contains(*custom, "{caption}") {
		return strings.ReplaceAll(*custom, "{caption}", original)
	}
	return *custom
}

// ConfigButton 根据用户配置构造自定义按钮
func ConfigButton(cfg *models.UserConfig) *botModels.InlineKeyboardMarkup {
	if !cfg.HasButton() {
		return nil
	}
	return &botModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]botModels.InlineKeyboardButton{
			{{Text: cfg.ButtonText, URL: cfg.ButtonURL}},
		},
	}
}
