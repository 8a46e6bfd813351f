package types

import "time"

// LogLevel 节点日志级别
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// LogEntry 节点日志条目
// 报告中的日志属于领域数据，与运维用的 zap 日志相互独立
type LogEntry struct {
	Level     LogLevel  `json:"level"`
	NodeID    string    `json:"node_id"`
	Operation string    `json:"operation,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Anomalous 标记的 INFO 条目在过滤时始终保留
	Anomalous bool `json:"anomalous,omitempty"`
	// Completion 标记操作的最后一条（完成）日志
	Completion bool `json:"completion,omitempty"`
}

// OperationKey 返回日志过滤按“子节点-操作”分组时使用的键
func (e LogEntry) OperationKey() string {
	return e.NodeID + "/" + e.Operation
}

// NewLogEntry 创建带当前时间戳的日志条目
func NewLogEntry(level LogLevel, nodeID, message string) LogEntry {
	return LogEntry{
		Level:     level,
		NodeID:    nodeID,
		Message:   message,
		Timestamp: time.Now(),
	}
}
