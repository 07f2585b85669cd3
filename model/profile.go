package model

import "sort"

// Profile 频道内的身份组
type Profile struct {
	ID              string          `db:"id" json:"id"`
	ChannelID       string          `db:"channel_id" json:"channel_id"`
	Name            string          `db:"name" json:"name"`
	Color           string          `db:"color" json:"color"`
	PermissionLevel PermissionLevel `db:"permission_level" json:"permission_level"`
	Permissions     FlagList        `db:"permissions" json:"permissions"`
	IsDefault       bool            `db:"is_default" json:"is_default"`
	CreatedAt       Timestamp       `db:"created_at" json:"created_at"`
}

// ProfileConnection 用户在频道中的身份组关系，Available=false 表示已离开。
type ProfileConnection struct {
	ChannelID  string     `db:"channel_id" json:"channel_id"`
	UserID     string     `db:"user_id" json:"user_id"`
	ProfileIDs StringList `db:"profile_ids" json:"profile_ids"`
	Available  bool       `db:"available" json:"available"`
}

// PermissionSet 权限集合
type PermissionSet map[PermissionFlag]struct{}

func NewPermissionSet(flags ...PermissionFlag) PermissionSet {
	s := make(PermissionSet, len(flags))
	for _, f := range flags {
		s[f] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(f PermissionFlag) bool {
	_, ok := s[f]
	return ok
}

func (s PermissionSet) Add(flags ...PermissionFlag) {
	for _, f := range flags {
		s[f] = struct{}{}
	}
}

// Sorted 按编码排序，便于输出。
func (s PermissionSet) Sorted() []PermissionFlag {
	out := make([]PermissionFlag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// levelPermissions 各等级隐含的权限，高等级包含低等级的全部权限。
var levelPermissions = map[PermissionLevel][]PermissionFlag{
	LevelNormal: {PermNormal, PermProfileControlSelf},
	LevelMod: {
		PermNormal, PermProfileControlSelf,
		PermProfileControlMember, PermProfileCED, PermAccessPinnedModule, PermAdjustFeatures,
	},
	LevelAdmin: {
		PermNormal, PermProfileControlSelf,
		PermProfileControlMember, PermProfileCED, PermAccessPinnedModule, PermAdjustFeatures,
		PermAdjustPrivacy,
	},
}

// LevelPermissions 返回等级隐含的权限，也就是该等级可以授予的权限上限。
func LevelPermissions(level PermissionLevel) PermissionSet {
	return NewPermissionSet(levelPermissions[level]...)
}
