package model

import (
	"strconv"
	"strings"
)

// 所有枚举的数字编码都是线上协议的一部分（数据库列与 API 都使用数字），只能新增不能改号。

// Platform 消息平台
type Platform int

const (
	PlatformUnknown Platform = 0
	PlatformLine    Platform = 1
	PlatformDiscord Platform = 2
)

var platformNames = map[Platform]string{
	PlatformUnknown: "UNKNOWN",
	PlatformLine:    "LINE",
	PlatformDiscord: "DISCORD",
}

func (p Platform) String() string { return enumName(platformNames, p) }

// ParsePlatform 接受名称（不区分大小写）或数字编码。
func ParsePlatform(s string) (Platform, bool) { return parseEnum(platformNames, s) }

// ContentType 自动回复内容类型
type ContentType int

const (
	ContentText        ContentType = 0
	ContentImage       ContentType = 1
	ContentLineSticker ContentType = 2
)

var contentTypeNames = map[ContentType]string{
	ContentText:        "TEXT",
	ContentImage:       "IMAGE",
	ContentLineSticker: "LINE_STICKER",
}

func (c ContentType) String() string { return enumName(contentTypeNames, c) }

func ParseContentType(s string) (ContentType, bool) { return parseEnum(contentTypeNames, s) }

// MessageType 入站消息类型，用于统计
type MessageType int

const (
	MessageUnknown     MessageType = 0
	MessageText        MessageType = 1
	MessageImage       MessageType = 2
	MessageLineSticker MessageType = 3
)

var messageTypeNames = map[MessageType]string{
	MessageUnknown:     "UNKNOWN",
	MessageText:        "TEXT",
	MessageImage:       "IMAGE",
	MessageLineSticker: "LINE_STICKER",
}

func (m MessageType) String() string { return enumName(messageTypeNames, m) }

// ContentType 返回用于关键字匹配的内容类型，未知类型返回 false。
func (m MessageType) ContentType() (ContentType, bool) {
	switch m {
	case MessageText:
		return ContentText, true
	case MessageImage:
		return ContentImage, true
	case MessageLineSticker:
		return ContentLineSticker, true
	}
	return 0, false
}

// ChannelType 频道类型，用于指令作用域
type ChannelType int

const (
	ChannelTypeUnknown    ChannelType = 0
	ChannelTypePrivate    ChannelType = 1
	ChannelTypePublicGrp  ChannelType = 2
	ChannelTypePrivateGrp ChannelType = 3
)

var channelTypeNames = map[ChannelType]string{
	ChannelTypeUnknown:    "UNKNOWN",
	ChannelTypePrivate:    "PRIVATE_TEXT",
	ChannelTypePublicGrp:  "GROUP_PUB_TEXT",
	ChannelTypePrivateGrp: "GROUP_PRV_TEXT",
}

func (c ChannelType) String() string { return enumName(channelTypeNames, c) }

// IsGroup 群组频道（公开或私密）
func (c ChannelType) IsGroup() bool {
	return c == ChannelTypePublicGrp || c == ChannelTypePrivateGrp
}

// PermissionLevel 身份组权限等级
type PermissionLevel int

const (
	LevelNormal PermissionLevel = 0
	LevelMod    PermissionLevel = 1
	LevelAdmin  PermissionLevel = 2
)

var permissionLevelNames = map[PermissionLevel]string{
	LevelNormal: "NORMAL",
	LevelMod:    "MOD",
	LevelAdmin:  "ADMIN",
}

func (l PermissionLevel) String() string { return enumName(permissionLevelNames, l) }

func ParsePermissionLevel(s string) (PermissionLevel, bool) {
	return parseEnum(permissionLevelNames, s)
}

// PermissionFlag 单项权限
type PermissionFlag int

const (
	PermNormal               PermissionFlag = 0
	PermProfileControlSelf   PermissionFlag = 101
	PermProfileControlMember PermissionFlag = 102
	PermProfileCED           PermissionFlag = 103
	PermAccessPinnedModule   PermissionFlag = 201
	PermAdjustFeatures       PermissionFlag = 301
	PermAdjustPrivacy        PermissionFlag = 302
)

var permissionFlagNames = map[PermissionFlag]string{
	PermNormal:               "NORMAL",
	PermProfileControlSelf:   "PRF_CONTROL_SELF",
	PermProfileControlMember: "PRF_CONTROL_MEMBER",
	PermProfileCED:           "PRF_CED",
	PermAccessPinnedModule:   "AR_ACCESS_PINNED_MODULE",
	PermAdjustFeatures:       "CNL_ADJUST_FEATURES",
	PermAdjustPrivacy:        "CNL_ADJUST_PRIVACY",
}

func (f PermissionFlag) String() string { return enumName(permissionFlagNames, f) }

func ParsePermissionFlag(s string) (PermissionFlag, bool) {
	return parseEnum(permissionFlagNames, s)
}

// BotFeature 功能使用统计的功能编码
type BotFeature int

const (
	FeatureUnknown      BotFeature = 0
	FeatureARAdd        BotFeature = 101
	FeatureARDelete     BotFeature = 102
	FeatureARList       BotFeature = 103
	FeatureARRanking    BotFeature = 104
	FeatureARPopularity BotFeature = 105
	FeatureARTriggered  BotFeature = 110
	FeatureCalculator   BotFeature = 201
	FeatureRMCActivate  BotFeature = 301
	FeatureRMCDeactive  BotFeature = 302
	FeatureRMCStatus    BotFeature = 303
	FeatureProfileList  BotFeature = 401
	FeatureProfilePerm  BotFeature = 402
	FeatureProfileAtt   BotFeature = 403
	FeatureProfileDet   BotFeature = 404
	FeatureProfileNew   BotFeature = 405
	FeatureProfileDel   BotFeature = 406
	FeatureExecodeList  BotFeature = 501
	FeatureChannelReg   BotFeature = 502
	FeatureIntegrate    BotFeature = 503
	FeatureInfo         BotFeature = 601
	FeatureSysInfo      BotFeature = 602
	FeatureHelp         BotFeature = 603
	FeatureErrorTest    BotFeature = 901
)

var botFeatureNames = map[BotFeature]string{
	FeatureUnknown:      "UNKNOWN",
	FeatureARAdd:        "AR_ADD",
	FeatureARDelete:     "AR_DEL",
	FeatureARList:       "AR_LIST",
	FeatureARRanking:    "AR_RANKING",
	FeatureARPopularity: "AR_POPULARITY",
	FeatureARTriggered:  "AR_TRIGGERED",
	FeatureCalculator:   "CALCULATOR",
	FeatureRMCActivate:  "RMC_ACTIVATE",
	FeatureRMCDeactive:  "RMC_DEACTIVATE",
	FeatureRMCStatus:    "RMC_STATUS",
	FeatureProfileList:  "PRF_LIST",
	FeatureProfilePerm:  "PRF_PERM",
	FeatureProfileAtt:   "PRF_ATTACH",
	FeatureProfileDet:   "PRF_DETACH",
	FeatureProfileNew:   "PRF_CREATE",
	FeatureProfileDel:   "PRF_DELETE",
	FeatureExecodeList:  "EXC_LIST",
	FeatureChannelReg:   "CNL_REGISTER",
	FeatureIntegrate:    "INTEGRATE",
	FeatureInfo:         "INFO",
	FeatureSysInfo:      "SYS_INFO",
	FeatureHelp:         "HELP",
	FeatureErrorTest:    "ERROR_TEST",
}

func (f BotFeature) String() string { return enumName(botFeatureNames, f) }

// ExecodeAction 待完成操作类型
type ExecodeAction int

const (
	ActionUnknown           ExecodeAction = 0
	ActionSysTest           ExecodeAction = 1
	ActionARAdd             ExecodeAction = 2
	ActionRegisterChannel   ExecodeAction = 3
	ActionIntegrateUserData ExecodeAction = 4
)

var execodeActionNames = map[ExecodeAction]string{
	ActionUnknown:           "UNKNOWN",
	ActionSysTest:           "SYS_TEST",
	ActionARAdd:             "AR_ADD",
	ActionRegisterChannel:   "REGISTER_CHANNEL",
	ActionIntegrateUserData: "INTEGRATE_USER_DATA",
}

func (a ExecodeAction) String() string { return enumName(execodeActionNames, a) }

func ParseExecodeAction(s string) (ExecodeAction, bool) {
	return parseEnum(execodeActionNames, s)
}

// ExtraContentType 站外内容类型
type ExtraContentType int

const (
	ExtraMessage ExtraContentType = 1
)

// OverflowReason 回应被转到站外的原因
type OverflowReason int

const (
	OverflowTooLong          OverflowReason = 1
	OverflowForcedOnSite     OverflowReason = 2
	OverflowTooManyLines     OverflowReason = 3
	OverflowTooManyResponses OverflowReason = 4
	OverflowLatexAvailable   OverflowReason = 5
)

var overflowReasonNames = map[OverflowReason]string{
	OverflowTooLong:          "TOO_LONG",
	OverflowForcedOnSite:     "FORCED_ONSITE",
	OverflowTooManyLines:     "TOO_MANY_LINES",
	OverflowTooManyResponses: "TOO_MANY_RESPONSES",
	OverflowLatexAvailable:   "LATEX_AVAILABLE",
}

func (r OverflowReason) String() string { return enumName(overflowReasonNames, r) }

func enumName[T ~int](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return strconv.Itoa(int(v))
}

func parseEnum[T ~int](names map[T]string, s string) (T, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := names[T(n)]; ok {
			return T(n), true
		}
		return 0, false
	}
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, true
		}
	}
	return 0, false
}
