package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics собирает показатели процесса для /health и /api/stats
type ServerMetrics struct {
	StartTime time.Time
}

// ProcessSnapshot: снимок показателей процесса
type ProcessSnapshot struct {
	Uptime     string  `json:"uptime"`
	UptimeSec  int64   `json:"uptime_seconds"`
	MemoryMB   float64 `json:"memory_mb"`
	HeapMB     float64 `json:"heap_mb"`
	NumGC      uint32  `json:"num_gc"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{StartTime: time.Now()}
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		// Если не удалось получить метрику процесса, попробуем системную
		cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
		if err != nil || len(cpuPercents) == 0 {
			return 0, err
		}
		return cpuPercents[0], nil
	}
	return cpuPercent, nil
}

// Snapshot собирает показатели процесса. Ошибка gopsutil не фатальна: CPU остаётся 0.
func (sm *ServerMetrics) Snapshot() ProcessSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cpuPercent, _ := sm.GetCPUUsage()
	return ProcessSnapshot{
		Uptime:     sm.GetUptime(),
		UptimeSec:  int64(time.Since(sm.StartTime).Seconds()),
		MemoryMB:   float64(m.Alloc) / 1024 / 1024,
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		NumGC:      m.NumGC,
		CPUPercent: cpuPercent,
		Goroutines: runtime.NumGoroutine(),
	}
}
