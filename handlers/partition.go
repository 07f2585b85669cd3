package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"jellybot/config"
	"jellybot/model"

	"go.uber.org/zap"
)

// Partitioner 依平台限制把回应分成直接送出与转到站外两部分
type Partitioner struct {
	limits map[model.Platform]config.PlatformLimits
	extra  model.ExtraSink
}

func NewPartitioner(limits map[model.Platform]config.PlatformLimits, extra model.ExtraSink) *Partitioner {
	return &Partitioner{limits: limits, extra: extra}
}

// LimitsFromConfig 各平台的输出限制
func LimitsFromConfig(cfg config.LimitsConfig) map[model.Platform]config.PlatformLimits {
	return map[model.Platform]config.PlatformLimits{
		model.PlatformLine:    cfg.Line,
		model.PlatformDiscord: cfg.Discord,
	}
}

const overflowTitle = "机器人回应"

// Partition 输出顺序与输入一致，站外链接附在最后
func (p *Partitioner) Partition(ctx context.Context, platform model.Platform, channelID string, msgs []model.HandledMessage) []model.OutboundMessage {
	lim, ok := p.limits[platform]
	if !ok {
		lim = p.limits[model.PlatformLine]
	}

	var (
		toSend []model.OutboundMessage
		toSite []model.OverflowItem
	)
	for _, m := range msgs {
		isText := m.Type == model.ContentText
		switch {
		case utf8.RuneCountInString(m.Content) > lim.MaxContentLength:
			toSite = append(toSite, model.OverflowItem{Reason: model.OverflowTooLong, Content: m.Content})
		case isText && m.ForceExtra:
			toSite = append(toSite, model.OverflowItem{Reason: model.OverflowForcedOnSite, Content: m.Content})
		case isText && !m.BypassMultilineCheck && lineCount(m.Content) > lim.MaxContentLines:
			toSite = append(toSite, model.OverflowItem{Reason: model.OverflowTooManyLines, Content: m.Content})
		case len(toSend) >= lim.MaxResponses:
			toSite = append(toSite, model.OverflowItem{Reason: model.OverflowTooManyResponses, Content: m.Content})
		default:
			toSend = append(toSend, model.OutboundMessage{Type: m.Type, Payload: m.Content})
			if m.LatexHTML != "" {
				toSite = append(toSite, model.OverflowItem{Reason: model.OverflowLatexAvailable, Content: m.LatexHTML})
			}
		}
	}
	if len(toSite) == 0 {
		return toSend
	}
	return append(toSend, p.overflowNotice(ctx, channelID, toSite))
}

func (p *Partitioner) overflowNotice(ctx context.Context, channelID string, items []model.OverflowItem) model.OutboundMessage {
	body, err := json.Marshal(items)
	if err == nil {
		var rec *model.ExtraContent
		if rec, err = p.extra.Record(ctx, model.ExtraMessage, channelID, overflowTitle, string(body)); err == nil {
			return model.OutboundMessage{Type: model.ContentText, Payload: fmt.Sprintf("部分内容无法直接显示，请至以下网址查看:\n%s", p.extra.URL(rec.ID))}
		}
	}
	zap.L().Error("Failed to record extra content", zap.String("channel_id", channelID), zap.Error(err))
	return model.OutboundMessage{Type: model.ContentText, Payload: "部分内容无法直接显示，且站外内容保存失败。"}
}

func lineCount(s string) int {
	return strings.Count(s, "\n") + 1
}
