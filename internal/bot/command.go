package bot

import (
	"strings"
)

const commandPrefix = "/"

type CommandKind string

const (
	KindIgnored    CommandKind = "ignored"
	KindManagement CommandKind = "management"
	KindAdmin      CommandKind = "admin"
	KindCounted    CommandKind = "counted"
)

var managementCommands = map[string]bool{
	"/start":   true,
	"/status":  true,
	"/premium": true,
	"/help":    true,
}

var adminCommands = map[string]bool{
	"/approve": true,
	"/pending": true,
}

// NormalizeCommand 把 "2/num" 与 "/2/num" 这类变体还原为 "/num"，其他文本只去掉首尾空白
func NormalizeCommand(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "/2/"):
		return "/" + text[len("/2/"):]
	case strings.HasPrefix(text, "2/"):
		return "/" + text[len("2/"):]
	default:
		return text
	}
}

// ParseCommand 拆出小写命令名与参数，去掉 @botname 后缀；非命令返回空串
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], commandPrefix) {
		return "", nil
	}

	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == commandPrefix {
		return "", nil
	}
	return cmd, fields[1:]
}

// Classify 命令分类，传入 ParseCommand 得到的命令名
func Classify(cmd string) CommandKind {
	switch {
	case cmd == "":
		return KindIgnored
	case managementCommands[cmd]:
		return KindManagement
	case adminCommands[cmd]:
		return KindAdmin
	default:
		return KindCounted
	}
}

// 回调数据前缀
const (
	callbackBuy     = "buy_"
	callbackConfirm = "confirm_"
	callbackReject  = "reject_"
)

// BuyCallback 生成购买按钮的回调数据
func BuyCallback(plan string) string {
	return callbackBuy + plan
}

func ConfirmCallback(requestID string) string {
	return callbackConfirm + requestID
}

func RejectCallback(requestID string) string {
	return callbackReject + requestID
}
