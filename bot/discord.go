package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jellybot/commands"
	"jellybot/model"
	"jellybot/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	eventTimeout = 10 * time.Second
	// 斜线指令已经 defer，必须有一则 followup 结束 "thinking"
	noResponseText = "没有可回应的内容。"
)

// Discord discordgo 适配器
type Discord struct {
	session *discordgo.Session
	bot     *Bot
	root    *commands.Node
}

func NewDiscord(token string, b *Bot, root *commands.Node) (*Discord, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent | discordgo.IntentsGuildMembers

	d := &Discord{session: dg, bot: b, root: root}
	dg.AddHandler(d.onReady)
	dg.AddHandler(d.onMessageCreate)
	dg.AddHandler(d.onInteractionCreate)
	dg.AddHandler(d.onGuildCreate)
	dg.AddHandler(d.onChannelCreate)
	dg.AddHandler(d.onChannelUpdate)
	dg.AddHandler(d.onChannelDelete)
	dg.AddHandler(d.onMemberAdd)
	dg.AddHandler(d.onMemberRemove)
	return d, nil
}

// Run 连接到网关直到 ctx 结束
func (d *Discord) Run(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	zap.L().Info("Discord session opened")
	<-ctx.Done()
	zap.L().Info("Closing discord session")
	return d.session.Close()
}

func (d *Discord) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zap.L().Info("Discord ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	cmds, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", commands.GenerateCommands(d.root))
	if err != nil {
		zap.L().Error("Failed to register slash commands", zap.Error(err))
		return
	}
	zap.L().Info("Registered slash commands", zap.Int("count", len(cmds)))
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	e := messageEvent(m.Message, d.channelName(s, m.ChannelID), d.guildName(s, m.GuildID))
	channelID := m.ChannelID
	d.bot.Deliver(e, func(ctx context.Context, out []model.OutboundMessage) error {
		return d.send(ctx, channelID, out)
	})
}

// messageEvent 把 Discord 消息转成管线事件
func messageEvent(m *discordgo.Message, channelName, guildName string) *model.MessageEvent {
	e := &model.MessageEvent{
		Raw:          m,
		Platform:     model.PlatformDiscord,
		Type:         model.MessageText,
		Content:      m.Content,
		ChannelType:  model.ChannelTypePrivate,
		ReceivedAt:   m.Timestamp,
		ChannelToken: m.ChannelID,
		ChannelName:  channelName,
	}
	if m.Author != nil {
		e.UserToken = m.Author.ID
		e.UserName = displayName(m.Author)
	}
	if m.GuildID != "" {
		e.ChannelType = model.ChannelTypePublicGrp
		e.CollectionToken = m.GuildID
		e.CollectionName = guildName
	}
	if m.Content == "" {
		e.Type = model.MessageUnknown
		for _, a := range m.Attachments {
			if strings.HasPrefix(a.ContentType, "image/") {
				e.Type = model.MessageImage
				e.Content = a.URL
				break
			}
		}
	}
	return e
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func (d *Discord) channelName(s *discordgo.Session, channelID string) string {
	if s.State == nil {
		return ""
	}
	ch, err := s.State.Channel(channelID)
	if err != nil {
		return ""
	}
	return ch.Name
}

func (d *Discord) guildName(s *discordgo.Session, guildID string) string {
	if guildID == "" || s.State == nil {
		return ""
	}
	g, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	return g.Name
}

func (d *Discord) send(ctx context.Context, channelID string, msgs []model.OutboundMessage) error {
	for _, m := range msgs {
		var err error
		switch m.Type {
		case model.ContentImage:
			_, err = d.session.ChannelMessageSendEmbed(channelID, imageEmbed(m.Payload), discordgo.WithContext(ctx))
		case model.ContentLineSticker:
			_, err = d.session.ChannelMessageSendEmbed(channelID, imageEmbed(utils.LineStickerURL(m.Payload)), discordgo.WithContext(ctx))
		default:
			_, err = d.session.ChannelMessageSend(channelID, m.Payload, discordgo.WithContext(ctx))
		}
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
	}
	return nil
}

func imageEmbed(url string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Image: &discordgo.MessageEmbedImage{URL: url}}
}

// onInteractionCreate /jc 斜线指令转成文字指令交给管线
func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commands.SlashCommandName || len(data.Options) == 0 {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		zap.L().Error("Failed to defer interaction response", zap.Error(err))
		return
	}

	e := &model.MessageEvent{
		Raw:          i.Interaction,
		Platform:     model.PlatformDiscord,
		Type:         model.MessageText,
		Content:      commands.SlashToText(d.root, data.Options[0].StringValue()),
		ChannelType:  model.ChannelTypePrivate,
		ReceivedAt:   time.Now(),
		ChannelToken: i.ChannelID,
		ChannelName:  d.channelName(s, i.ChannelID),
	}
	user := i.User
	if i.Member != nil {
		user = i.Member.User
	}
	if user != nil {
		e.UserToken = user.ID
		e.UserName = displayName(user)
	}
	if i.GuildID != "" {
		e.ChannelType = model.ChannelTypePublicGrp
		e.CollectionToken = i.GuildID
		e.CollectionName = d.guildName(s, i.GuildID)
	}

	interaction := i.Interaction
	ok := d.bot.DeliverReply(e, func(ctx context.Context, out []model.OutboundMessage) error {
		for _, m := range followups(out) {
			params := &discordgo.WebhookParams{Content: m.Payload}
			if m.Type != model.ContentText {
				url := m.Payload
				if m.Type == model.ContentLineSticker {
					url = utils.LineStickerURL(url)
				}
				params = &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{imageEmbed(url)}}
			}
			if _, err := s.FollowupMessageCreate(interaction, true, params, discordgo.WithContext(ctx)); err != nil {
				return fmt.Errorf("failed to send interaction followup: %w", err)
			}
		}
		return nil
	})
	if !ok {
		zap.L().Warn("Worker pool stopped, dropping interaction", zap.String("channel_id", i.ChannelID))
	}
}

// followups 没有回应时补一则提示
func followups(out []model.OutboundMessage) []model.OutboundMessage {
	if len(out) == 0 {
		return []model.OutboundMessage{{Type: model.ContentText, Payload: noResponseText}}
	}
	return out
}

func (d *Discord) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if err := d.registerGuildChannel(ctx, g.ID, g.Name, ch); err != nil {
			zap.L().Warn("Failed to register guild channel", zap.String("guild_id", g.ID), zap.String("channel_id", ch.ID), zap.Error(err))
		}
	}
}

func (d *Discord) registerGuildChannel(ctx context.Context, guildID, guildName string, ch *discordgo.Channel) error {
	if err := d.bot.ChannelCreated(ctx, model.PlatformDiscord, ch.ID, ch.Name); err != nil {
		return err
	}
	registered, err := d.bot.Channels.GetByToken(ctx, model.PlatformDiscord, ch.ID)
	if err != nil || registered == nil {
		return err
	}
	_, err = d.bot.Channels.RegisterCollection(ctx, model.PlatformDiscord, guildID, guildName, registered.ID)
	return err
}

func (d *Discord) onChannelCreate(s *discordgo.Session, c *discordgo.ChannelCreate) {
	if c.Type != discordgo.ChannelTypeGuildText {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := d.registerGuildChannel(ctx, c.GuildID, d.guildName(s, c.GuildID), c.Channel); err != nil {
		zap.L().Warn("Failed to register created channel", zap.String("channel_id", c.ID), zap.Error(err))
	}
}

func (d *Discord) onChannelUpdate(_ *discordgo.Session, c *discordgo.ChannelUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := d.bot.ChannelUpdated(ctx, model.PlatformDiscord, c.ID, c.Name); err != nil {
		zap.L().Warn("Failed to update channel", zap.String("channel_id", c.ID), zap.Error(err))
	}
}

func (d *Discord) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := d.bot.ChannelDeleted(ctx, model.PlatformDiscord, c.ID); err != nil {
		zap.L().Warn("Failed to deregister channel", zap.String("channel_id", c.ID), zap.Error(err))
	}
}

func (d *Discord) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := d.bot.CollectionMemberJoined(ctx, model.PlatformDiscord, m.GuildID, m.User.ID, displayName(m.User)); err != nil {
		zap.L().Warn("Failed to handle member join", zap.String("guild_id", m.GuildID), zap.String("user_id", m.User.ID), zap.Error(err))
	}
}

func (d *Discord) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := d.bot.CollectionMemberLeft(ctx, model.PlatformDiscord, m.GuildID, m.User.ID); err != nil {
		zap.L().Warn("Failed to handle member leave", zap.String("guild_id", m.GuildID), zap.String("user_id", m.User.ID), zap.Error(err))
	}
}
