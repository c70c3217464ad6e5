package service

import (
	"log/slog"
	"strings"

	"github.com/yuqie6/PodPulse/internal/schema"
)

// loginAttributor 全局同步：只认与 token 同一登录名的作者
func loginAttributor(login, userID string) attributor {
	return func(author, _, _ string) (string, bool) {
		if author == "" || !strings.EqualFold(author, login) {
			return "", false
		}
		return userID, true
	}
}

type podMatchEntry struct {
	userID string
	name   string
}

// podAttributor 团队同步归属：githubUsername → 邮箱 → 姓名等于登录名（仅未设置 githubUsername 的成员）
// 姓名匹配容易误判，可关闭，命中时记审计日志
func podAttributor(podID string, members []schema.PodMember, users map[string]schema.User, weakName bool) attributor {
	byLogin := make(map[string]string)
	byEmail := make(map[string]string)
	var weak []podMatchEntry

	for _, m := range members {
		if m.Status != schema.MemberAccepted {
			continue
		}
		u, ok := users[m.UserID]
		login := m.GithubUsername
		if login == "" && ok {
			login = u.GithubUsername
		}
		if login != "" {
			byLogin[strings.ToLower(login)] = m.UserID
		}
		if !ok {
			continue
		}
		if u.Email != "" {
			byEmail[strings.ToLower(u.Email)] = m.UserID
		}
		if login == "" && u.Name != "" {
			weak = append(weak, podMatchEntry{userID: m.UserID, name: u.Name})
		}
	}

	return func(login, _, email string) (string, bool) {
		if login != "" {
			if uid, ok := byLogin[strings.ToLower(login)]; ok {
				return uid, true
			}
		}
		if email != "" {
			if uid, ok := byEmail[strings.ToLower(email)]; ok {
				return uid, true
			}
		}
		if !weakName || login == "" {
			return "", false
		}
		for _, w := range weak {
			if w.name == login {
				slog.Info("作者按姓名弱匹配", "pod", podID, "login", login, "user", w.userID, "match", "weak_name")
				return w.userID, true
			}
		}
		return "", false
	}
}

// resolvePodToken 优先负责人的有效 token，其次任一已接受成员
func resolvePodToken(members []schema.PodMember, users map[string]schema.User) (userID, token string, ok bool) {
	pick := func(lead bool) (string, string, bool) {
		for _, m := range members {
			if m.Status != schema.MemberAccepted || m.IsLead() != lead {
				continue
			}
			u, found := users[m.UserID]
			if found && u.TokenValid && u.GithubToken != "" {
				return u.ID, u.GithubToken, true
			}
		}
		return "", "", false
	}
	if userID, token, ok = pick(true); ok {
		return userID, token, true
	}
	return pick(false)
}
