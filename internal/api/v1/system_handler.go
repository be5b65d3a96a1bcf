package v1

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"vpnkey-hub/internal/api/response"
	loggerpkg "vpnkey-hub/pkg/logger"
)

type SystemHandler struct {
	logStore  *loggerpkg.RingStore
	startedAt time.Time
	version   string
}

type systemStatus struct {
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	HostUptime    uint64  `json:"host_uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	Goroutines    int     `json:"goroutines"`
	Timestamp     int64   `json:"timestamp"`
}

func NewSystemHandler(logStore *loggerpkg.RingStore, version string) *SystemHandler {
	return &SystemHandler{
		logStore:  logStore,
		startedAt: time.Now(),
		version:   version,
	}
}

func RegisterSystemRoutes(group *gin.RouterGroup, logStore *loggerpkg.RingStore, version string) {
	handler := NewSystemHandler(logStore, version)
	system := group.Group("/system")

	system.GET("/status", handler.Status)
	system.GET("/logs", handler.Logs)
}

func (h *SystemHandler) Status(c *gin.Context) {
	now := time.Now()

	status := systemStatus{
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Timestamp:     now.Unix(),
	}

	if values, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(values) > 0 {
		status.CPUPercent = values[0]
	}
	if stat, err := mem.VirtualMemory(); err == nil {
		status.MemPercent = stat.UsedPercent
		status.MemUsedBytes = stat.Used
	}
	if uptime, err := host.Uptime(); err == nil {
		status.HostUptime = uptime
	}

	response.Success(c, status)
}

func (h *SystemHandler) Logs(c *gin.Context) {
	if h.logStore == nil {
		response.Fail(c, http.StatusNotFound, response.ErrInternal, "log store disabled")
		return
	}

	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 20)

	entries, total := h.logStore.Query(c.Query("level"), c.Query("keyword"), page, pageSize)
	response.Paginated(c, entries, page, pageSize, total)
}
