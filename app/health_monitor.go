package app

import (
	"fmt"
	"log"
	"time"

	"marketpipe/config"
	"marketpipe/database"
	models "marketpipe/database/models_pkg"
)

// services whose heartbeats the monitor watches
var monitoredServices = []string{
	database.ServiceDataFeed,
	database.ServiceStrategyRunner,
	database.ServiceExecutionEngine,
	database.ServiceFakeBroker,
}

// HealthMonitor watches service heartbeats and minute-data freshness. A
// stale broker or execution engine stops trading outright; stale minute data
// only enters safe mode (no new positions) and lifts it again once the feed
// catches up.
type HealthMonitor struct {
	repo *database.Repository
	cfg  config.PipelineConfig
	done chan bool
}

// NewHealthMonitor creates the health monitor daemon
func NewHealthMonitor(repo *database.Repository, cfg config.PipelineConfig) *HealthMonitor {
	return &HealthMonitor{
		repo: repo,
		cfg:  cfg,
		done: make(chan bool),
	}
}

// Start begins the check loop
func (h *HealthMonitor) Start() {
	log.Println("🩺 Health monitor started")

	ticker := time.NewTicker(h.cfg.HealthPoll)
	defer ticker.Stop()

	h.poll()

	for {
		select {
		case <-ticker.C:
			h.poll()
		case <-h.done:
			log.Println("🩺 Health monitor stopped")
			return
		}
	}
}

// Stop gracefully stops the monitor
func (h *HealthMonitor) Stop() {
	close(h.done)
}

func (h *HealthMonitor) poll() {
	now := time.Now().UTC()

	h.checkHeartbeats(now)
	h.checkMinuteLag(now)

	if err := h.repo.Control.Heartbeat(database.ServiceHealthMonitor, "ok", nil); err != nil {
		log.Printf("⚠️  Health monitor heartbeat failed: %v", err)
	}
}

func (h *HealthMonitor) checkHeartbeats(now time.Time) {
	rows, err := h.repo.Control.ListHeartbeats()
	if err != nil {
		log.Printf("❌ Heartbeat check failed: %v", err)
		h.logError("heartbeat check failed: "+err.Error(), database.SeverityError)
		return
	}
	byName := make(map[string]models.ServiceStatus, len(rows))
	for _, row := range rows {
		byName[row.ServiceName] = row
	}

	for _, service := range monitoredServices {
		status, ok := byName[service]
		if !ok {
			log.Printf("⚠️  No heartbeat row for %s", service)
			h.logError(service+"_status_missing", database.SeverityWarning)
			mtxServiceUp.WithLabelValues(service).Set(0)
			continue
		}

		lag := now.Sub(status.LastHeartbeat)
		if lag <= h.cfg.HeartbeatTimeout {
			mtxServiceUp.WithLabelValues(service).Set(1)
			continue
		}

		log.Printf("❌ %s down: heartbeat lag %.0fs > %.0fs",
			service, lag.Seconds(), h.cfg.HeartbeatTimeout.Seconds())
		h.logError(service+"_down", database.SeverityCritical)
		mtxServiceUp.WithLabelValues(service).Set(0)

		if service == database.ServiceFakeBroker || service == database.ServiceExecutionEngine {
			h.stopTrading(service)
		}
	}
}

// stopTrading flips both control flags off when the fill path is down
func (h *HealthMonitor) stopTrading(service string) {
	tc, err := h.repo.Control.GetTradingControl()
	if err != nil {
		log.Printf("❌ trading_control read failed: %v", err)
		return
	}
	if !tc.AllowTrading {
		return
	}
	log.Printf("🛑 Disabling trading: %s_down", service)
	comment := fmt.Sprintf("auto stop-trading by health_monitor: %s_down", service)
	if err := h.repo.Control.SetTradingControl(false, false, comment); err != nil {
		log.Printf("❌ trading_control write failed: %v", err)
	}
}

// checkMinuteLag compares the newest minute candle against the clock. Beyond
// the threshold it blocks new positions; back under it, it unblocks them.
func (h *HealthMonitor) checkMinuteLag(now time.Time) {
	latest, err := h.repo.Candles.MaxMinuteTimestamp()
	if err != nil {
		log.Printf("❌ Minute lag check failed: %v", err)
		h.logError("minute lag check failed: "+err.Error(), database.SeverityError)
		return
	}
	if latest == nil {
		log.Println("⚠️  No minute candles yet, skipping lag check")
		return
	}

	lag := now.Sub(*latest)
	mtxDataLagSeconds.Set(lag.Seconds())

	tc, err := h.repo.Control.GetTradingControl()
	if err != nil {
		log.Printf("❌ trading_control read failed: %v", err)
		return
	}

	if lag > h.cfg.MinuteDataMaxLag {
		log.Printf("⚠️  Minute data lag %.0fs > %.0fs, entering safe mode",
			lag.Seconds(), h.cfg.MinuteDataMaxLag.Seconds())
		h.logError("bar_too_old", database.SeverityWarning)
		if tc.AllowNewPositions {
			err := h.repo.Control.SetAllowNewPositions(false,
				"safe-mode by health_monitor: candles_1m lag too high")
			if err != nil {
				log.Printf("❌ trading_control write failed: %v", err)
			}
		}
		return
	}

	if !tc.AllowNewPositions {
		log.Println("✅ Minute data lag back to normal, leaving safe mode")
		err := h.repo.Control.SetAllowNewPositions(true,
			"safe-mode disabled: candles_1m lag back to normal")
		if err != nil {
			log.Printf("❌ trading_control write failed: %v", err)
		}
	}
}

func (h *HealthMonitor) logError(message, severity string) {
	err := h.repo.Control.LogError(&models.LiveError{
		Source:   database.SourceSystem,
		Severity: severity,
		Message:  message,
	})
	if err != nil {
		log.Printf("⚠️  live_errors write failed: %v", err)
	}
}
