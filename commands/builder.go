package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// SlashCommandName Discord 上对应文字指令的斜线指令
const SlashCommandName = "jc"

// GenerateCommands 生成 Discord 斜线指令。输入内容会接在根前缀后交给指令树处理。
func GenerateCommands(root *Node) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        SlashCommandName,
			Description: "Run a " + root.prefix + " command",
			NameLocalizations: &map[discordgo.Locale]string{
				discordgo.ChineseCN: "指令",
				discordgo.ChineseTW: "指令",
			},
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.ChineseCN: "执行 " + root.prefix + " 指令",
				discordgo.ChineseTW: "執行 " + root.prefix + " 指令",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "command",
					Description: "指令内容，例如 AR LIST",
					Required:    true,
				},
			},
		},
	}
}

// SlashToText 把斜线指令的输入还原成文字指令
func SlashToText(root *Node, input string) string {
	return root.prefix + root.splitters[len(root.splitters)-1] + strings.TrimSpace(input)
}
