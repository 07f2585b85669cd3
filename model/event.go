package model

import "time"

// MessageEvent 平台无关的入站消息。适配器只填写平台原始字段，
// 频道、用户模型由消息管线解析后回填。
type MessageEvent struct {
	Raw         any
	Platform    Platform
	Type        MessageType
	Content     string
	ChannelType ChannelType
	ReceivedAt  time.Time

	ChannelToken    string
	ChannelName     string
	UserToken       string
	UserName        string
	CollectionToken string
	CollectionName  string

	Channel       *Channel
	ChannelSource *Channel // 远端控制生效时为实际收到消息的频道
	User          *RootUser
	Collection    *ChannelCollection
}

// RemoteActivated 消息是否被远端控制改写了频道
func (e *MessageEvent) RemoteActivated() bool {
	return e.ChannelSource != nil && e.Channel != nil && e.ChannelSource.ID != e.Channel.ID
}

// UserID 没有用户（例如 LINE 群组里无法取得 ID）时返回空字符串。
func (e *MessageEvent) UserID() string {
	if e.User == nil {
		return ""
	}
	return e.User.ID
}

// HandledMessage 功能处理器产生的一条回应
type HandledMessage struct {
	Type    ContentType
	Content string

	BypassMultilineCheck bool
	ForceExtra           bool
	LatexHTML            string // 计算机结果有 LaTeX 版本时非空
}

func TextMessage(content string) HandledMessage {
	return HandledMessage{Type: ContentText, Content: content}
}

// OutboundMessage 分配后要送往平台的一条消息
type OutboundMessage struct {
	Type    ContentType
	Payload string
}
