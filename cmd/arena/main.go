package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/survarena/server/internal/cluster"
	"github.com/survarena/server/internal/config"
	"github.com/survarena/server/internal/data"
	"github.com/survarena/server/internal/handler"
	gonet "github.com/survarena/server/internal/net"
	"github.com/survarena/server/internal/net/packet"
	"github.com/survarena/server/internal/persist"
	"github.com/survarena/server/internal/scripting"
	"github.com/survarena/server/internal/sim"
	"github.com/survarena/server/internal/system"
	"github.com/survarena/server/internal/viewer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	log = log.With(zap.String("server", cfg.Server.Name), zap.String("region", cfg.Server.Region))

	// 3. Load data
	printSection("Data")
	stages, err := data.LoadGasStageTable(cfg.Gas.StageTable)
	if err != nil {
		return fmt.Errorf("load gas stages: %w", err)
	}
	printStat("gas modes", stages.Count())

	layout, err := data.LoadLayout(cfg.Sim.Layout)
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	printStat("obstacles", len(layout.Obstacles))
	printStat("loot spawns", len(layout.Loot))

	// 4. Lua rules
	rules, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer rules.Close()
	printOK("Lua scripts loaded")
	fmt.Println()

	// 5. Simulation instance
	seed := cfg.Gas.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	inst, err := sim.New(sim.Config{
		Mode:        cfg.Sim.Mode,
		TickRate:    cfg.Sim.TickRate,
		CellSize:    cfg.Sim.CellSize,
		MaxEntities: cfg.Sim.MaxEntities,
		View: viewer.Options{
			ViewWidth:      cfg.Sim.ViewWidth,
			ViewHeight:     cfg.Sim.ViewHeight,
			RecomputeEvery: cfg.Sim.RecomputeEvery,
			MoveThreshold:  cfg.Sim.MoveThreshold,
		},
		EndGrace:    cfg.Sim.EndGrace,
		AirdropFall: cfg.Sim.AirdropFall,
		MinPlayers:  cfg.Sim.MinPlayers,
		GasSeed:     seed,
		Layout:      layout,
		Stages:      stages.Get(cfg.Sim.Mode),
	}, rules, log)
	if err != nil {
		return err
	}

	// 6. Optional results store
	if cfg.Database.DSN != "" {
		printSection("Database")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			cancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		err = persist.RunMigrations(ctx, db)
		cancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		fmt.Println()
		inst.AddSink(persist.NewMatchRepo(db))
	}

	// 7. Network
	codec, err := gonet.NewCodec(cfg.Network.CompressThreshold)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	allow := gonet.NewAllowList(cfg.Network.RequireAllow)
	srv, err := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.WSPath, codec, allow, gonet.SessionOptions{
		InSize:       cfg.Network.InQueueSize,
		OutSize:      cfg.Network.OutQueueSize,
		PktPerSec:    cfg.RateLimit.PacketsPerSecond,
		MalformedMax: cfg.RateLimit.MalformedPerSecond,
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	inst.SetMessageHandlers(sim.MessageHandlers{AllowIP: allow.Allow})

	// 8. Optional cluster node
	var reporter system.Reporter
	if cfg.Nats.URL != "" {
		tr, err := cluster.Dial(cfg.Nats.URL, cfg.Server.Name+"-"+inst.ID.String(), log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		node := cluster.NewNode(tr, cfg.Nats.Prefix, log)
		defer node.Close()
		if err := node.SubscribeAllow(inst.Post); err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		reporter = node
		printOK("NATS connected")
	}

	// 9. Handlers and systems
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, &handler.Deps{Inst: inst, Log: log})
	system.RegisterAll(inst, system.Deps{
		Source:     srv,
		Registry:   reg,
		Store:      gonet.NewSessionStore(),
		MaxPerTick: cfg.Network.MaxPacketsPerTick,
		Reporter:   reporter,
		Log:        log,
	})

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("net server stopped", zap.Error(err))
		}
	}()

	printSection("Ready")
	printReady(fmt.Sprintf("listening on %s%s", srv.Addr().String(), cfg.Network.WSPath))
	printReady(fmt.Sprintf("match %s (%s, %d ticks/s)", inst.ID, inst.Mode, cfg.Sim.TickRate))
	fmt.Println()

	// 10. Run until the round stops. The first signal ends the round
	// gracefully; a second one aborts.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown requested, ending round")
		inst.Post(sim.Message{Kind: sim.MsgShutdown})
		<-sigCh
		log.Warn("second signal, aborting")
		cancel()
	}()

	runErr := inst.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("net server shutdown", zap.Error(err))
	}
	inst.WaitResults()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
