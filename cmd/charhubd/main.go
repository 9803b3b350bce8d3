package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charhub/server/internal/auth"
	"github.com/charhub/server/internal/authlink"
	"github.com/charhub/server/internal/config"
	"github.com/charhub/server/internal/data"
	"github.com/charhub/server/internal/handler"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"github.com/charhub/server/internal/persist"
	"github.com/charhub/server/internal/presence"
	"github.com/charhub/server/internal/scripting"
	"github.com/charhub/server/internal/system"
	"github.com/charhub/server/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             CharHub  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      角色中樞 · 叢集會話協調伺服器        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	// Use rune count for CJK width calculation (each CJK char = 2 columns)
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := 46 - displayWidth - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	displayWidth := 0
	for _, r := range label {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	dotsLen := 42 - displayWidth - len(numStr)
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
	cfgPath := "config/charhub.toml"
	if p := os.Getenv("CHARHUB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL 連線成功")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("資料庫遷移完成")

	charRepo := persist.NewCharacterRepo(db)

	// The presence registry is rebuilt from scratch every boot; whatever the
	// DB remembers about online characters is stale.
	if err := charRepo.SetAllOffline(ctx); err != nil {
		return fmt.Errorf("reset online flags: %w", err)
	}
	printOK("上線旗標已重置")
	fmt.Println()

	// 4. Load static data and policy scripts
	printSection("資料載入")

	zones, err := data.LoadZoneTable(cfg.Character.ZoneFile)
	if err != nil {
		return fmt.Errorf("load zone table: %w", err)
	}
	printStat("區域", zones.Count())

	policy, err := scripting.NewEngine(cfg.Character.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer policy.Close()
	printOK("Lua 策略腳本載入完成")
	fmt.Println()

	// 5. Create network server
	netServer, err := gonet.NewServer(
		cfg.Network.BindAddress,
		cfg.Network.InQueueSize,
		cfg.Network.OutQueueSize,
		cfg.Network.PacketsPerSecond,
		cfg.Network.WriteTimeout,
		log,
	)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}

	// 6. Core state: ledger, world table, presence registry, auth link
	ledger := auth.NewLedger(cfg.Session.LedgerCapacity)
	worlds := world.NewTable(cfg.World.MaxServers, log)
	link := authlink.NewLink(cfg.AuthServer, cfg.Server.Name, cfg.Network.TickRate, netServer, log)

	kickGraceTicks := int64(cfg.Session.KickGrace / cfg.Network.TickRate)
	idleGraceTicks := int64(cfg.Session.SweepIdleGrace / cfg.Network.TickRate)
	pres := presence.NewRegistry(
		kickGraceTicks, idleGraceTicks,
		link,
		&handler.WorldKicker{Worlds: worlds},
		log,
	)

	// 7. Packet handler registry
	store := gonet.NewSessionStore()
	pktReg := packet.NewRegistry(log)
	deps := &handler.Deps{
		CharRepo:      charRepo,
		Config:        cfg,
		Log:           log,
		Ledger:        ledger,
		Presence:      pres,
		Worlds:        worlds,
		AuthLink:      link,
		Zones:         zones,
		Policy:        policy,
		Sessions:      store,
		PendingVerify: make(map[int32]uint64),
	}
	handler.RegisterAll(pktReg, deps)

	inputSys := system.NewInputSystem(
		netServer, pktReg, store,
		pres, worlds, charRepo,
		deps.PendingVerify,
		cfg.Network.MaxPacketsPerTick,
		log,
	)

	go netServer.AcceptLoop()

	// 8. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("帳號伺服器 %s", cfg.AuthServer.Address))
	printReady(fmt.Sprintf("協調迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	sweepTicks := int(cfg.Session.SweepInterval / cfg.Network.TickRate)
	reportTicks := int(cfg.AuthServer.ReportInterval / cfg.Network.TickRate)
	sweepCounter := 0
	reportCounter := 0

	for {
		select {
		case <-ticker.C:
			// Auth link upkeep: adopt a fresh connection or pace a redial.
			if linkSess := link.Maintain(); linkSess != nil {
				store.Add(linkSess)
			}

			inputSys.Update()
			pres.Tick()

			sweepCounter++
			if sweepCounter >= sweepTicks {
				sweepCounter = 0
				pres.Sweep()
			}

			reportCounter++
			if reportCounter >= reportTicks {
				reportCounter = 0
				if link.Ready() {
					link.SendUserCount(worlds.TotalUsers())
				}
			}

		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			netServer.Shutdown()
			store.ForEach(func(sess *gonet.Session) {
				sess.Close()
			})
			log.Info("伺服器已停止")
			return nil
		}
	}
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
