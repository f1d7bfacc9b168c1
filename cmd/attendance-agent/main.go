// The attendance agent runs on an employee workstation, classifies
// input activity, reports heartbeats to the HR backend, and manages the
// break lifecycle around idle, lock, offline, and downtime episodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	v1 "github.com/gdshr/attendance-agent/pkg/api/v1"

	"github.com/gdshr/attendance-agent/internal/agent/controller"
	"github.com/gdshr/attendance-agent/internal/agent/input"
	"github.com/gdshr/attendance-agent/internal/agent/recovery"
	"github.com/gdshr/attendance-agent/internal/common/clock"
	"github.com/gdshr/attendance-agent/internal/common/config"
	"github.com/gdshr/attendance-agent/internal/common/logger"
	"github.com/gdshr/attendance-agent/internal/detect"
	"github.com/gdshr/attendance-agent/internal/enrollment"
	"github.com/gdshr/attendance-agent/internal/events/bus"
	"github.com/gdshr/attendance-agent/internal/hrclient"
	"github.com/gdshr/attendance-agent/internal/offline"
	"github.com/gdshr/attendance-agent/internal/platform"
	"github.com/gdshr/attendance-agent/internal/supervisor"
	"github.com/gdshr/attendance-agent/internal/uibridge"
)

func main() {
	configPath := flag.String("config", "", "path to config directory")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "attendance-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load configuration
	cfg, err := config.LoadWithPath(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.HR.ServerURL == "" {
		return fmt.Errorf("hr.serverUrl is required (set ATTEND_HR_SERVER_URL)")
	}
	if cfg.HR.EmpCode == "" {
		return fmt.Errorf("hr.empCode is required (set ATTEND_HR_EMP_CODE)")
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig(cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting attendance agent",
		zap.String("version", v1.AgentVersion),
		zap.String("emp_code", cfg.HR.EmpCode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Acquire the single-instance lock
	lock, err := platform.AcquireInstanceLock(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// 4. Initialize the event bus (in-memory unless NATS is configured)
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		eventBus, err = bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	// 5. Open local persistence: offline buffer and alive marker
	buffer := offline.NewBuffer(filepath.Join(cfg.Paths.DataDir, "pending.jsonl"), log)
	alive := offline.NewAliveFile(filepath.Join(cfg.Paths.DataDir, "state.json"), v1.AgentVersion)

	// 6. Create the HR client and enroll the device
	hr := hrclient.New(cfg.HR.ServerURL, cfg.HR.EmpCode, buffer, log)
	probe := platform.NewPortableProbe()

	credStore := enrollment.NewStore(cfg.Paths.DataDir, log)
	creds, err := enrollment.EnsureEnrolled(ctx, credStore, hr, cfg.HR.EmpCode, probe.Hostname())
	if err != nil {
		return err
	}
	hr.SetCredentials(creds.DeviceID, creds.DeviceToken)
	log = log.WithDeviceID(creds.DeviceID)
	if creds.HeartbeatIntervalSec > 0 {
		cfg.Agent.HeartbeatIntervalSec = creds.HeartbeatIntervalSec
	}

	// 7. Fetch the shift window (best effort; nil means always on duty)
	window, err := hr.FetchShiftWindow(ctx)
	if err != nil {
		log.Warn("could not fetch shift window, assuming always on duty", zap.Error(err))
	}

	// 8. Reconcile downtime since the last run
	lastAlive, err := alive.Last()
	if err != nil {
		log.Warn("could not read alive marker", zap.Error(err))
	}
	if _, err := recovery.RecoverDowntime(ctx, hr, lastAlive, time.Now().UTC(), window,
		cfg.Agent.IdleThreshold(), log); err != nil {
		log.Warn("downtime recovery failed", zap.Error(err))
	}

	// 9. Replay anything buffered from earlier runs
	if _, remaining, err := hr.ReplayBuffered(ctx); err != nil {
		log.Warn("startup replay incomplete",
			zap.Int("remaining", remaining), zap.Error(err))
	}

	// 10. Build the transport probe used for offline detection
	prober, err := offline.NewTCPProber(cfg.HR.ServerURL, 4*time.Second)
	if err != nil {
		return fmt.Errorf("invalid hr.serverUrl: %w", err)
	}

	// 11. Wire the controller and the UI bridge
	queue := input.NewQueue(4096)
	ctrl := controller.New(controller.Deps{
		Config:            cfg.Agent,
		Clock:             clock.System(),
		Logger:            log,
		Bus:               eventBus,
		Queue:             queue,
		Watchdog:          input.NewWatchdog(captureSources(), queue.Push, log),
		Scanner:           detect.NewScanner(),
		Probe:             probe,
		Prober:            prober,
		HR:                hr,
		Alive:             alive,
		Window:            window,
		SuspiciousWarning: cfg.UIBridge.SuspiciousWarning,
	})

	ui := uibridge.NewServer(cfg.UIBridge, ctrl, log)
	ctrl.SetPopup(ui)
	if err := ui.ForwardEvents(eventBus); err != nil {
		return fmt.Errorf("failed to subscribe ui bridge to events: %w", err)
	}

	// 12. Run both under supervision until shutdown
	g, ctx := errgroup.WithContext(ctx)
	clk := clock.System()

	g.Go(func() error {
		return supervisor.New("controller", clk, log).
			OnRestart(hr.ResetConnectionPool).
			Run(ctx, ctrl.Run)
	})
	g.Go(func() error {
		return supervisor.New("uibridge", clk, log).Run(ctx, ui.Start)
	})

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("attendance agent stopped")
	return nil
}

// captureSources returns the platform's input capture hooks. The
// portable build has none; idle detection then leans on the OS probe
// and the agent reports heartbeats without pattern scoring.
func captureSources() []input.Source {
	return nil
}
