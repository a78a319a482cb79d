package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/loanops/dealbridge/internal/database"
	"github.com/loanops/dealbridge/internal/reliability"
)

var startTime = time.Now()

// SystemHandlers serves status and backup endpoints.
type SystemHandlers struct {
	mirrorDB      *database.DB               // nil without a data dir
	backupService *reliability.BackupService // nil when unconfigured
	log           zerolog.Logger
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(log zerolog.Logger, mirrorDB *database.DB, backupService *reliability.BackupService) *SystemHandlers {
	return &SystemHandlers{
		mirrorDB:      mirrorDB,
		backupService: backupService,
		log:           log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus returns uptime plus host and mirror database stats.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
	}

	cpuAvg, ramPercent := h.getSystemStats()
	response["cpu_percent"] = cpuAvg
	response["ram_percent"] = ramPercent

	if usage, err := disk.Usage("/"); err == nil {
		response["disk"] = map[string]interface{}{
			"total_bytes":  usage.Total,
			"used_bytes":   usage.Used,
			"used_percent": usage.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	if h.mirrorDB != nil {
		if stats, err := h.mirrorDB.GetStats(); err == nil {
			response["mirror_db"] = map[string]interface{}{
				"name":           h.mirrorDB.Name(),
				"size_bytes":     stats.SizeBytes,
				"wal_size_bytes": stats.WALSizeBytes,
				"page_count":     stats.PageCount,
				"page_size":      stats.PageSize,
			}
		} else {
			h.log.Warn().Err(err).Msg("Failed to get mirror database stats")
		}
	}

	response["backup_configured"] = h.backupService != nil

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerBackup creates and uploads a backup immediately.
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		h.writeError(w, http.StatusServiceUnavailable, "backup storage not configured")
		return
	}

	archive, err := h.backupService.CreateBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Backup failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"archive": archive,
	})
}

// HandleListBackups lists stored backups, newest first.
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		h.writeError(w, http.StatusServiceUnavailable, "backup storage not configured")
		return
	}

	backups, err := h.backupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Listing backups failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"backups": backups})
}

// getSystemStats returns CPU and RAM usage percentages. The short CPU
// sampling interval keeps the status endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *SystemHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
