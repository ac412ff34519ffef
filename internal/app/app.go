package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrDDream/ReminderVoteBot/internal/catalog"
	"github.com/MrDDream/ReminderVoteBot/internal/commands"
	"github.com/MrDDream/ReminderVoteBot/internal/config"
	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
	"github.com/MrDDream/ReminderVoteBot/internal/discord"
	"github.com/MrDDream/ReminderVoteBot/internal/reminder"
	"github.com/MrDDream/ReminderVoteBot/internal/scheduler"
	"github.com/MrDDream/ReminderVoteBot/internal/store"
	"github.com/MrDDream/ReminderVoteBot/internal/telegram"
	"github.com/MrDDream/ReminderVoteBot/internal/token"
	"github.com/MrDDream/ReminderVoteBot/internal/web"
)

// platform is a chat network the bot runs on.
type platform struct {
	transport interface {
		delivery.Transport
		reminder.NameSource
	}
	channelRef func(id string) string
	// serve blocks until ctx is done, feeding incoming messages to cmds.
	serve func(ctx context.Context, cmds *commands.Handler) error
}

type App struct {
	cfg      config.Config
	log      *zap.Logger
	platform platform
	repo     store.Repo
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	p, err := newPlatform(cfg, log)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, log: log, platform: p}, nil
}

func newPlatform(cfg config.Config, log *zap.Logger) (platform, error) {
	switch cfg.Transport {
	case "telegram":
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return platform{}, err
		}
		bot.Debug = false
		return platform{
			transport:  telegram.NewTransport(bot),
			channelRef: func(id string) string { return id },
			serve: func(ctx context.Context, cmds *commands.Handler) error {
				return telegram.NewRouter(bot, log, cmds).Run(ctx)
			},
		}, nil
	case "discord":
		s, err := discord.NewSession(cfg.DiscordToken)
		if err != nil {
			return platform{}, err
		}
		return platform{
			transport: discord.NewTransport(s),
			serve: func(ctx context.Context, cmds *commands.Handler) error {
				return discord.NewBot(s, cmds, log).Run(ctx)
			},
		}, nil
	default:
		return platform{}, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func (a *App) openRepo(ctx context.Context) (store.Repo, error) {
	switch a.cfg.StoreBackend {
	case "json":
		return store.OpenFile(a.cfg.DataDir)
	default:
		return store.OpenSQLite(ctx, a.cfg.DBPath)
	}
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting reminder-vote-bot",
		zap.String("transport", a.cfg.Transport),
		zap.String("store", a.cfg.StoreBackend),
		zap.String("http", a.cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := a.openRepo(ctx)
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	a.repo = repo
	defer func() {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("store close error", zap.Error(err))
		}
	}()

	st := store.New(repo, a.log)
	if err := st.Load(ctx); err != nil {
		return err
	}
	a.log.Info("store ready", zap.Int("subscriptions", len(st.List())))

	cat, err := catalog.Open(a.cfg.CatalogPath, a.cfg.DefaultVoteURL)
	if err != nil {
		a.log.Error("open vote catalog failed", zap.String("path", a.cfg.CatalogPath), zap.Error(err))
		return err
	}
	a.log.Info("vote catalog ready", zap.String("path", cat.Path()), zap.Int("entries", len(cat.Entries())))

	secret, insecure := a.cfg.Secret()
	if insecure {
		a.log.Warn("MARK_SECRET is not set; redirect tokens use a development secret")
	}
	codec := token.NewCodec(secret)
	lang := reminder.ParseLang(a.cfg.Lang)

	out := delivery.NewDispatcher(a.platform.transport, a.cfg.SendRate, a.log)
	notifier := reminder.NewNotifier(cat, reminder.NewNames(a.platform.transport), codec, out, a.log, reminder.NotifierOptions{
		PublicBaseURL: a.cfg.PublicBaseURL,
		Lang:          lang,
	})
	sched, err := scheduler.New(st, cat, notifier, a.log, scheduler.Options{
		DefaultTZ: a.cfg.DefaultTZ,
		Spec:      a.cfg.TickSpec,
	})
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	svc := reminder.NewService(st, cat, sched, notifier, a.log, reminder.ServiceOptions{
		TokenMaxAge: a.cfg.TokenMaxAge,
	})
	cmds := commands.New(svc, a.log, commands.Options{
		Lang:       lang,
		DefaultTZ:  a.cfg.DefaultTZ,
		ChannelRef: a.platform.channelRef,
		Admins:     a.cfg.AdminIDs,
	})

	n := svc.Start()
	sched.Start()
	a.log.Info("subscriptions scheduled", zap.Int("active", n))

	httpSrv := web.NewServer(a.cfg.HTTPAddr, web.NewRouter(codec, svc, a.log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := cat.Watch(gctx, a.log, func(ch catalog.Change) {
			svc.ApplyCatalog(gctx, ch)
		})
		if err != nil {
			// Edits to the catalog file then need a restart.
			a.log.Warn("catalog watcher unavailable", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return a.platform.serve(gctx, cmds)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")
		if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
			a.log.Debug("sd_notify stopping failed", zap.Error(err))
		}

		// One deadline covers the http server and the in-flight reminders.
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shCtx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		sched.Stop(shCtx)
		return nil
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", zap.Error(err))
	} else if ok {
		a.log.Info("notified systemd")
	}

	err = g.Wait()
	if err != nil {
		a.log.Error("stopped with error", zap.Error(err))
		return err
	}
	a.log.Info("stopped")
	return nil
}
