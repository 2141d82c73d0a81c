package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chimeyao/ghrelay/internal/agent"
	"github.com/chimeyao/ghrelay/internal/aggregate"
	"github.com/chimeyao/ghrelay/internal/cache"
	"github.com/chimeyao/ghrelay/internal/chat"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/contexts"
	"github.com/chimeyao/ghrelay/internal/dedup"
	"github.com/chimeyao/ghrelay/internal/dispatch"
	"github.com/chimeyao/ghrelay/internal/format"
	"github.com/chimeyao/ghrelay/internal/gateway"
	"github.com/chimeyao/ghrelay/internal/ghapi"
	"github.com/chimeyao/ghrelay/internal/maintenance"
	"github.com/chimeyao/ghrelay/internal/permissions"
	"github.com/chimeyao/ghrelay/internal/providers"
	"github.com/chimeyao/ghrelay/internal/review"
	"github.com/chimeyao/ghrelay/internal/telemetry"
	"github.com/chimeyao/ghrelay/internal/tools"
)

// notificationEvents are the event types routed to chat notifications.
var notificationEvents = []string{
	"push", "pull_request", "issues", "issue_comment",
	"pull_request_review", "pull_request_review_comment",
	"release", "star", "fork", "watch", "create", "delete",
	"workflow_run", "workflow_job", "repository", "ping",
}

func runServe() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	slog.Info("ghrelay starting", "version", Version, "config", cfgPath, "data_dir", dataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("tracing setup failed", "error", err)
	}

	// Shared infrastructure.
	apiCache := cache.New(10 * time.Minute)
	deliveries := dedup.New()
	perms, err := permissions.NewStore(filepath.Join(dataDir, "permissions.json"), cfg.Superusers)
	if err != nil {
		return fmt.Errorf("open permission store: %w", err)
	}
	ctxStore := contexts.NewManager(filepath.Join(dataDir, "contexts"))

	proxyURL := ""
	if cfg.Proxy.Enabled {
		proxyURL = cfg.Proxy.URL
	}

	// GitHub client and tool surface.
	gh, err := ghapi.NewClient(cfg.GitHub.Token, proxyURL, apiCache)
	if err != nil {
		return fmt.Errorf("github client: %w", err)
	}
	registry := tools.NewRegistry()
	if err := ghapi.BindTools(registry, gh, ctxStore); err != nil {
		return fmt.Errorf("bind tools: %w", err)
	}
	executor := tools.NewExecutor(registry, perms)

	// Model provider and conversation loop.
	provider, err := providers.NewOpenAIProvider(cfg.AI.Provider, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, proxyURL)
	if err != nil {
		return fmt.Errorf("model provider: %w", err)
	}
	loop := agent.NewLoop(cfg, provider, executor, ctxStore)

	// Chat connection, message entry, notification delivery, recall
	// reconciliation.
	chatClient := chat.NewClient(cfg.Chat.WSURL, cfg.Chat.AccessToken)
	sender := chat.NewSender(chatClient, cfg)
	recaller := chat.NewRecaller(chatClient, ctxStore)
	messenger := chat.NewMessenger(chatClient, cfg, loop, perms, ctxStore)
	chatClient.OnEvent(func(event map[string]interface{}) {
		messenger.HandleEvent(event)
		recaller.HandleEvent(event)
	})

	formatter := format.New(cfg)
	agg := aggregate.New(sender, cfg.AggregationDelay(), cfg.Notify.MaxPerGroup)

	replier := agent.NewReplier(gh, loop, ctxStore)
	replier.SetStatusFactory(func(repository string) agent.Statuser {
		groups := cfg.RepoGroups(repository)
		if len(groups) == 0 {
			return nil
		}
		return chat.NewStatusPoster(chatClient, groups[0])
	})

	// Synthetic events (e.g. ai_review) skip dispatch gating and go
	// straight to formatting.
	notify := func(event, repository string, payload map[string]interface{}) {
		content := formatter.Format(event, payload)
		if content == nil {
			return
		}
		for _, groupID := range cfg.RepoGroups(repository) {
			target := chat.GroupTarget(groupID)
			agg.Add(repository+"|"+target, target, content)
		}
	}
	reviewer := review.NewController(cfg, gh, loop, notify)

	// Webhook dispatch.
	dispatcher := dispatch.New(cfg, deliveries)
	notifyHandler := dispatch.NotificationHandler(cfg, formatter, agg)
	for _, event := range notificationEvents {
		dispatcher.On(event, notifyHandler)
	}
	dispatcher.On("pull_request", dispatch.ReviewHandler(reviewer))
	dispatcher.On("issue_comment", dispatch.CommentHandler(cfg, replier))
	dispatcher.On("pull_request_review_comment", dispatch.CommentHandler(cfg, replier))
	dispatcher.On("issues", dispatch.AutomationHandler(cfg, gh))
	dispatcher.On("pull_request", dispatch.AutomationHandler(cfg, gh))

	// Periodic housekeeping.
	sched := maintenance.NewScheduler()
	mustSchedule(sched, "cache-sweep", "*/10 * * * *", func() { apiCache.Sweep() })
	mustSchedule(sched, "dedup-prune", "*/15 * * * *", func() { deliveries.Prune() })
	mustSchedule(sched, "context-cleanup", "0 * * * *", func() { ctxStore.CleanupExpired() })
	mustSchedule(sched, "agent-limiter-prune", "30 * * * *", func() { loop.Limiter().Prune() })
	mustSchedule(sched, "chat-limiter-prune", "45 * * * *", func() { sender.Prune() })

	// Hot reload keeps the shared config pointer fresh.
	if err := config.Watch(ctx, cfgPath, func(next *config.Config) { cfg.Replace(next) }); err != nil {
		slog.Warn("config watch unavailable", "error", err)
	}

	go chatClient.Run(ctx)
	go dispatcher.Run(ctx)
	go sched.Run(ctx)

	server := gateway.NewServer(cfg, dispatcher, agg)
	err = server.Start(ctx)

	// Drain pending notifications before exit.
	agg.FlushAll()
	chatClient.Close()
	if shutdownTracing != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := shutdownTracing(flushCtx); terr != nil {
			slog.Warn("tracing shutdown failed", "error", terr)
		}
	}
	return err
}

func mustSchedule(s *maintenance.Scheduler, name, expr string, run func()) {
	if err := s.Add(name, expr, run); err != nil {
		panic(err)
	}
}
