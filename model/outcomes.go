package model

// AddOutcome 自动回复新增结果
type AddOutcome int

const (
	AddInserted               AddOutcome = 1
	AddSuperseded             AddOutcome = 2
	AddPinConflict            AddOutcome = 11
	AddInsufficientPermission AddOutcome = 12
	AddInvalidKeyword         AddOutcome = 13
	AddInvalidResponse        AddOutcome = 14
	AddFieldError             AddOutcome = 15
)

var addOutcomeNames = map[AddOutcome]string{
	AddInserted:               "INSERTED",
	AddSuperseded:             "SUPERSEDED",
	AddPinConflict:            "PIN_CONFLICT",
	AddInsufficientPermission: "INSUFFICIENT_PERMISSION",
	AddInvalidKeyword:         "INVALID_KEYWORD",
	AddInvalidResponse:        "INVALID_RESPONSE",
	AddFieldError:             "FIELD_ERROR",
}

func (o AddOutcome) String() string { return enumName(addOutcomeNames, o) }

// Succeeded 新增或覆盖成功
func (o AddOutcome) Succeeded() bool {
	return o == AddInserted || o == AddSuperseded
}

// RemoveOutcome 自动回复停用结果
type RemoveOutcome int

const (
	RemoveRemoved                RemoveOutcome = 1
	RemoveNotFound               RemoveOutcome = 11
	RemoveInsufficientPermission RemoveOutcome = 12
)

var removeOutcomeNames = map[RemoveOutcome]string{
	RemoveRemoved:                "REMOVED",
	RemoveNotFound:               "NOT_FOUND",
	RemoveInsufficientPermission: "INSUFFICIENT_PERMISSION",
}

func (o RemoveOutcome) String() string { return enumName(removeOutcomeNames, o) }

// InfoFlag 新增自动回复时附带的提示
type InfoFlag int

const (
	InfoResponsesTruncated   InfoFlag = 1
	InfoResponseTypesPadded  InfoFlag = 2
	InfoResponseTypesTrimmed InfoFlag = 3
	InfoPinInherited         InfoFlag = 4
	InfoOldModulePurged      InfoFlag = 5
)

var infoFlagNames = map[InfoFlag]string{
	InfoResponsesTruncated:   "RESPONSES_TRUNCATED",
	InfoResponseTypesPadded:  "RESPONSE_TYPES_PADDED",
	InfoResponseTypesTrimmed: "RESPONSE_TYPES_TRIMMED",
	InfoPinInherited:         "PIN_INHERITED",
	InfoOldModulePurged:      "OLD_MODULE_PURGED",
}

func (f InfoFlag) String() string { return enumName(infoFlagNames, f) }

func (f InfoFlag) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// AddRequest 新增自动回复的参数。指针字段为 nil 表示未明确指定。
type AddRequest struct {
	ChannelID     string
	CreatorID     string
	Keyword       Content
	Responses     []string
	ResponseTypes []ContentType
	Pinned        *bool
	Private       *bool
	TagNames      []string
	CooldownSec   *int
}

// AddResult 新增自动回复的结果
type AddResult struct {
	Outcome     AddOutcome
	Module      *AutoReplyModule
	Superseded  *AutoReplyModule
	Info        []InfoFlag
	FieldErrors map[string]string
}

// ProfileOutcome 身份组操作结果
type ProfileOutcome int

const (
	ProfileOK                     ProfileOutcome = 1
	ProfileNotFound               ProfileOutcome = 11
	ProfileInsufficientPermission ProfileOutcome = 12
	ProfileNameConflict           ProfileOutcome = 13
	ProfileLevelTooHigh           ProfileOutcome = 14
	ProfilePermissionNotGrantable ProfileOutcome = 15
	ProfileIsDefault              ProfileOutcome = 16
	ProfileAlreadyAttached        ProfileOutcome = 17
	ProfileNotAttached            ProfileOutcome = 18
	ProfileInvalidName            ProfileOutcome = 19
)

var profileOutcomeNames = map[ProfileOutcome]string{
	ProfileOK:                     "OK",
	ProfileNotFound:               "NOT_FOUND",
	ProfileInsufficientPermission: "INSUFFICIENT_PERMISSION",
	ProfileNameConflict:           "NAME_CONFLICT",
	ProfileLevelTooHigh:           "LEVEL_TOO_HIGH",
	ProfilePermissionNotGrantable: "PERMISSION_NOT_GRANTABLE",
	ProfileIsDefault:              "IS_DEFAULT",
	ProfileAlreadyAttached:        "ALREADY_ATTACHED",
	ProfileNotAttached:            "NOT_ATTACHED",
	ProfileInvalidName:            "INVALID_NAME",
}

func (o ProfileOutcome) String() string { return enumName(profileOutcomeNames, o) }

// ProfileAttrs 新身份组的属性
type ProfileAttrs struct {
	ChannelID       string
	Name            string
	Color           string
	PermissionLevel PermissionLevel
	Permissions     []PermissionFlag
}
