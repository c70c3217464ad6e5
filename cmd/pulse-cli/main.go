package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/PodPulse/internal/bootstrap"
	"github.com/yuqie6/PodPulse/internal/pkg/config"
	"github.com/yuqie6/PodPulse/internal/schema"
	"github.com/yuqie6/PodPulse/internal/service"
)

var (
	cfgFile string
	core    *bootstrap.Core
)

// skipCore 标记不需要数据库的子命令
const skipCore = "skip-core"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "PodPulse - 团队协作贡献与信誉追踪",
		Long:  `PodPulse 从 GitHub 同步提交、PR、Issue 与评审，去重计分后汇总为团队排行榜、成就与路线图。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if _, ok := cmd.Annotations[skipCore]; ok {
				return
			}
			var err error
			core, err = bootstrap.NewCore(configPath())
			if err != nil {
				slog.Error("初始化失败", "error", err)
				os.Exit(1)
			}
			if core.DB.SafeMode {
				slog.Warn("数据库处于安全模式，写操作可能失败", "reason", core.DB.MigrationError)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(podCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(achievementsCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(roadmapCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func fail(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// configCmd 配置文件
func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "配置文件管理"}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "写入默认配置",
		Annotations: map[string]string{skipCore: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				fail("配置文件已存在: %s (使用 --force 覆盖)", path)
			}
			if err := config.WriteFile(path, config.Default()); err != nil {
				fail("写入配置失败: %v", err)
			}
			fmt.Printf("✅ 已写入 %s\n", path)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")

	cmd.AddCommand(initCmd)
	return cmd
}

// userCmd 用户管理
func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "用户管理"}

	var name, email, login, token string
	addCmd := &cobra.Command{
		Use:   "add <id>",
		Short: "新增或更新用户",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			u, err := core.Repos.User.GetByID(ctx, args[0])
			if err != nil {
				fail("查询用户失败: %v", err)
			}
			if u == nil {
				u = schema.NewUser(args[0], name, email)
			}
			if name != "" {
				u.Name = name
			}
			if email != "" {
				u.Email = email
			}
			if login != "" {
				u.GithubUsername = login
			}
			if token != "" {
				u.GithubToken = token
				u.TokenValid = true
			}
			if err := core.Repos.User.Upsert(ctx, u); err != nil {
				fail("保存用户失败: %v", err)
			}
			fmt.Printf("✅ 用户 %s 已保存 (token: %v)\n", u.ID, u.GithubToken != "")
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "姓名")
	addCmd.Flags().StringVar(&email, "email", "", "邮箱")
	addCmd.Flags().StringVar(&login, "github", "", "GitHub 用户名")
	addCmd.Flags().StringVar(&token, "token", "", "GitHub access token")

	var limit int
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "查看用户信誉与最近奖励",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			u, err := core.Repos.User.GetByID(ctx, args[0])
			if err != nil {
				fail("查询用户失败: %v", err)
			}
			if u == nil {
				fail("用户不存在")
			}
			fmt.Printf("👤 %s (%s) github=%s token_valid=%v\n", u.ID, u.Name, u.GithubUsername, u.TokenValid)
			fmt.Printf("🛡️  信誉 %.1f · 准时率 %d%% · 救火 %d · 逾期 %d · 完成 %d\n",
				u.ReliabilityScore, u.Dynamics.OnTimeRate, u.Dynamics.RescueCount,
				u.Dynamics.MissedDeadlines, u.Dynamics.TotalCompleted)

			rewards, err := core.Repos.Reward.ListByUser(ctx, u.ID, limit)
			if err != nil {
				fail("查询奖励失败: %v", err)
			}
			for _, r := range rewards {
				fmt.Printf("  • %s  +%d  %s %v\n", r.CreatedAt.Local().Format("01-02 15:04"), r.Points, r.Reason, []string(r.Badges))
			}
		},
	}
	showCmd.Flags().IntVarP(&limit, "limit", "n", 10, "最近奖励条数")

	cmd.AddCommand(addCmd, showCmd)
	return cmd
}

// podCmd 团队管理
func podCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pod", Short: "团队管理"}

	var podName string
	addCmd := &cobra.Command{
		Use:   "add <pod-id>",
		Short: "新增团队",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := core.Repos.Pod.Upsert(context.Background(), &schema.Pod{ID: args[0], Name: podName}); err != nil {
				fail("保存团队失败: %v", err)
			}
			fmt.Printf("✅ 团队 %s 已保存\n", args[0])
		},
	}
	addCmd.Flags().StringVar(&podName, "name", "", "团队名称")

	var role, login string
	var pending bool
	joinCmd := &cobra.Command{
		Use:   "join <pod-id> <user-id>",
		Short: "加入团队",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			status := schema.MemberAccepted
			if pending {
				status = schema.MemberPending
			}
			m := &schema.PodMember{PodID: args[0], UserID: args[1], Role: role, Status: status, GithubUsername: login}
			if err := core.Repos.Pod.UpsertMember(context.Background(), m); err != nil {
				fail("保存成员失败: %v", err)
			}
			fmt.Printf("✅ %s 已加入 %s (%s, %s)\n", args[1], args[0], role, status)
		},
	}
	joinCmd.Flags().StringVar(&role, "role", schema.RoleMember, "角色: lead/owner/member")
	joinCmd.Flags().StringVar(&login, "github", "", "团队内使用的 GitHub 用户名")
	joinCmd.Flags().BoolVar(&pending, "pending", false, "仅邀请，未接受")

	linkCmd := &cobra.Command{
		Use:   "link <pod-id> <owner/repo>",
		Short: "关联仓库",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ref, err := parseRepoRef(args[1])
			if err != nil {
				fail("%v", err)
			}
			if err := core.Repos.Pod.LinkRepo(context.Background(), &schema.PodRepo{PodID: args[0], Owner: ref.Owner, Name: ref.Name}); err != nil {
				fail("关联仓库失败: %v", err)
			}
			fmt.Printf("✅ %s 已关联 %s\n", args[0], ref.FullName())
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "列出团队及关联仓库",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			pods, err := core.Repos.Pod.ListAll(ctx)
			if err != nil {
				fail("查询团队失败: %v", err)
			}
			for _, p := range pods {
				repos, err := core.Repos.Pod.ListRepos(ctx, p.ID)
				if err != nil {
					fail("查询仓库失败: %v", err)
				}
				fmt.Printf("👥 %s %s (%d 个仓库)\n", p.ID, p.Name, len(repos))
				for _, r := range repos {
					last := "从未同步"
					if r.LastSync > 0 {
						last = time.UnixMilli(r.LastSync).Format("2006-01-02 15:04")
					}
					fmt.Printf("  • %s  %s\n", r.FullName(), last)
				}
			}
		},
	}

	cmd.AddCommand(addCmd, joinCmd, linkCmd, listCmd)
	return cmd
}

func parseRepoRef(s string) (service.RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return service.RepoRef{}, fmt.Errorf("仓库格式应为 owner/name: %q", s)
	}
	return service.RepoRef{Owner: owner, Name: name}, nil
}

// syncCmd 手动同步
func syncCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sync", Short: "从 GitHub 同步活动"}

	userSync := &cobra.Command{
		Use:   "user <user-id>",
		Short: "同步用户可见的全部仓库 (30 天)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := core.Services.Sync.SyncUser(context.Background(), args[0])
			printSyncResult(res, err)
		},
	}

	var repos []string
	podSync := &cobra.Command{
		Use:   "pod <pod-id>",
		Short: "同步团队关联仓库 (365 天)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			if len(repos) == 0 {
				res, err := core.Services.Sync.SyncPod(ctx, args[0])
				printSyncResult(res, err)
				return
			}
			refs := make([]service.RepoRef, 0, len(repos))
			for _, r := range repos {
				ref, err := parseRepoRef(r)
				if err != nil {
					fail("%v", err)
				}
				refs = append(refs, ref)
			}
			res, err := core.Services.Sync.SyncPodRepositories(ctx, args[0], refs)
			printSyncResult(res, err)
		},
	}
	podSync.Flags().StringSliceVar(&repos, "repo", nil, "只同步指定仓库 owner/name，可重复")

	cmd.AddCommand(userSync, podSync)
	return cmd
}

func printSyncResult(res *service.SyncResult, err error) {
	if res != nil {
		fmt.Printf("📦 仓库 %d · 提交 %d · PR %d\n", res.ReposFetched, res.CommitsFetched, res.PRsFetched)
		fmt.Printf("✨ 新增活动 %d · 奖励 %d\n", res.ActivitiesCreated, res.RewardsCreated)
		for _, e := range res.Errors {
			fmt.Printf("  ⚠️  %s\n", e)
		}
	}
	if err != nil {
		fail("同步失败: %v", err)
	}
}

// taskCmd 任务状态变更
func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "任务事件"}

	var (
		podID, assignee, completer, original, due, prev string
	)
	completeCmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "标记任务完成并更新信誉",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e := service.TaskStatusChange{
				TaskID:             args[0],
				PodID:              podID,
				AssigneeID:         assignee,
				CompleterID:        completer,
				OriginalAssigneeID: original,
				CompletedAt:        time.Now(),
				PreviousStatus:     prev,
				NewStatus:          service.TaskStatusDone,
			}
			if due != "" {
				t, err := parseDue(due)
				if err != nil {
					fail("%v", err)
				}
				e.DueAt = &t
			}
			rep, err := core.Services.Reputation.HandleStatusChange(context.Background(), e)
			if err != nil {
				fail("更新信誉失败: %v", err)
			}
			if rep == nil {
				fmt.Println("ℹ️  状态未首次进入 done，信誉不变")
				return
			}
			fmt.Printf("✅ 信誉 %.1f · 准时率 %d%% · 救火 %d · 逾期 %d · 完成 %d\n",
				rep.Score, rep.Dynamics.OnTimeRate, rep.Dynamics.RescueCount,
				rep.Dynamics.MissedDeadlines, rep.Dynamics.TotalCompleted)
		},
	}
	completeCmd.Flags().StringVar(&podID, "pod", "", "团队 ID")
	completeCmd.Flags().StringVar(&assignee, "assignee", "", "当前负责人")
	completeCmd.Flags().StringVar(&completer, "completer", "", "实际完成人，默认负责人")
	completeCmd.Flags().StringVar(&original, "original", "", "原负责人（用于判定救火）")
	completeCmd.Flags().StringVar(&due, "due", "", "截止时间 YYYY-MM-DD 或 RFC3339")
	completeCmd.Flags().StringVar(&prev, "prev", service.TaskStatusInProgress, "之前的状态")
	_ = completeCmd.MarkFlagRequired("assignee")

	cmd.AddCommand(completeCmd)
	return cmd
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("无法解析截止时间 %q", s)
	}
	// 日期截止到当天结束
	return t.Add(24*time.Hour - time.Second), nil
}

// leaderboardCmd 排行榜
func leaderboardCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "leaderboard <pod-id>",
		Short: "团队排行榜",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := core.Services.Leaderboard.Leaderboard(context.Background(), args[0])
			if err != nil {
				podFailure(err)
			}
			if asJSON {
				printJSON(entries)
				return
			}
			fmt.Printf("🏆 %s 排行榜\n", args[0])
			fmt.Println("═══════════════════════════════════════")
			for i, e := range entries {
				name := e.Name
				if name == "" {
					name = e.UserID
				}
				fmt.Printf("%2d. %-16s Lv.%d  %5d 分 (奖励 %d + 活动 %d)  信誉 %.1f\n",
					i+1, name, e.Level, e.TotalPoints, e.RewardPoints, e.ActivityPoints, e.ReliabilityScore)
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON 输出")
	return cmd
}

// achievementsCmd 成就动态
func achievementsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "achievements <pod-id>",
		Short: "最近成就",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			list, err := core.Services.Leaderboard.Achievements(context.Background(), args[0])
			if err != nil {
				podFailure(err)
			}
			if asJSON {
				printJSON(list)
				return
			}
			if len(list) == 0 {
				fmt.Println("📚 还没有成就记录")
				return
			}
			for _, a := range list {
				fmt.Printf("  • %s  %-10s %-16s +%d  %s\n",
					a.Time.Local().Format("01-02 15:04"), a.UserID, a.Badge, a.Points, a.Reason)
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON 输出")
	return cmd
}

// profileCmd 个人画像
func profileCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "个人画像"}

	languages := &cobra.Command{
		Use:   "languages <user-id>",
		Short: "活跃仓库的语言分布",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := core.Services.Profile.Languages(context.Background(), args[0])
			if err != nil {
				fail("获取语言分布失败: %v", err)
			}
			fmt.Printf("💻 %s 的语言分布 (活跃仓库 %d 个)\n", p.UserID, len(p.Repos))
			for _, l := range p.Languages {
				fmt.Printf("  • %-14s %5.1f%%\n", l.Language, l.Percent)
			}
			for _, e := range p.Errors {
				fmt.Printf("  ⚠️  %s\n", e)
			}
		},
	}

	cmd.AddCommand(languages)
	return cmd
}

// roadmapCmd 团队路线图
func roadmapCmd() *cobra.Command {
	var regenerate bool
	cmd := &cobra.Command{
		Use:   "roadmap <pod-id>",
		Short: "团队路线图",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			var (
				rm  *schema.PodRoadmap
				err error
			)
			if regenerate {
				rm, err = core.Services.Roadmap.Regenerate(ctx, args[0])
			} else {
				rm, err = core.Services.Roadmap.Get(ctx, args[0])
			}
			if err != nil {
				podFailure(err)
			}
			fmt.Println(rm.Content)
		},
	}
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "忽略缓存重新生成")
	return cmd
}

func podFailure(err error) {
	if errors.Is(err, service.ErrPodNotFound) {
		fail("团队不存在")
	}
	fail("查询失败: %v", err)
}
