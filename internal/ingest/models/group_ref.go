package models

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupRefKind 群组标识类型
type GroupRefKind string

const (
	GroupRefByID         GroupRefKind = "id"
	GroupRefByHandle     GroupRefKind = "handle"
	GroupRefByInviteLink GroupRefKind = "invite_link"
)

// GroupRef 群组标识，加载时一次性确定类型
type GroupRef struct {
	Kind  GroupRefKind
	ID    int64  // Kind == GroupRefByID
	Value string // 原始值：@handle 或邀请链接
}

// String 返回便于日志输出的形式
func (g GroupRef) String() string {
	if g.Kind == GroupRefByID {
		return strconv.FormatInt(g.ID, 10)
	}
	return g.Value
}

// Key 缓存键
func (g GroupRef) Key() string {
	return string(g.Kind) + ":" + g.String()
}

var invitePrefixes = []string{
	"https://t.me/+",
	"https://t.me/joinchat/",
	"http://t.me/+",
	"http://t.me/joinchat/",
	"t.me/+",
	"t.me/joinchat/",
	"https://telegram.me/joinchat/",
}

var publicLinkPrefixes = []string{
	"https://t.me/",
	"http://t.me/",
	"t.me/",
	"https://telegram.me/",
}

// ParseGroupRef 解析群组标识
// 优先级：-100 开头或纯数字 → ID；@ 开头 → handle；邀请链接 → invite；其他 → 补 @ 作为 handle
func ParseGroupRef(raw string) (GroupRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return GroupRef{}, fmt.Errorf("empty group identifier")
	}

	if strings.HasPrefix(s, "-100") || isNumeric(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return GroupRef{}, fmt.Errorf("invalid chat id %q: %w", s, err)
		}
		return GroupRef{Kind: GroupRefByID, ID: id, Value: s}, nil
	}

	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return GroupRef{}, fmt.Errorf("empty handle")
		}
		return GroupRef{Kind: GroupRefByHandle, Value: s}, nil
	}

	for _, prefix := range invitePrefixes {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return GroupRef{Kind: GroupRefByInviteLink, Value: s}, nil
		}
	}

	for _, prefix := range publicLinkPrefixes {
		if strings.HasPrefix(s, prefix) {
			name := strings.Trim(strings.TrimPrefix(s, prefix), "/")
			if name == "" || strings.Contains(name, "/") {
				return GroupRef{}, fmt.Errorf("unsupported link %q", s)
			}
			return GroupRef{Kind: GroupRefByHandle, Value: "@" + name}, nil
		}
	}

	return GroupRef{Kind: GroupRefByHandle, Value: "@" + s}, nil
}

// ParseGroupRefs 逐行解析群组标识，跳过空行和 # 注释
// 无法解析的行会收集到 errs 中，不影响其它行
func ParseGroupRefs(lines []string) (refs []GroupRef, errs []error) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ref, err := ParseGroupRef(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// InviteHash 从邀请链接中提取 hash
func InviteHash(link string) (string, error) {
	for _, prefix := range invitePrefixes {
		if strings.HasPrefix(link, prefix) {
			hash := strings.Trim(strings.TrimPrefix(link, prefix), "/")
			if i := strings.IndexAny(hash, "/?"); i >= 0 {
				hash = hash[:i]
			}
			if hash == "" {
				break
			}
			return hash, nil
		}
	}
	return "", fmt.Errorf("not an invite link: %q", link)
}
