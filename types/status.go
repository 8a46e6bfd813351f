package types

// Status 节点健康状态
// 严重程度全序：healthy < degraded < unhealthy < error；unknown 不参与排序
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

// Severity 返回状态的严重程度，unknown 与非法值返回 -1
func (s Status) Severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	case StatusError:
		return 3
	default:
		return -1
	}
}

// IsKnown 判断状态是否处于有序集合中
func (s Status) IsKnown() bool {
	return s.Severity() >= 0
}

// AtLeast 判断 s 是否不低于 other
func (s Status) AtLeast(other Status) bool {
	return s.Severity() >= other.Severity()
}

// MaxStatus 返回更严重的状态；unknown 永远不会胜出，除非两者都是 unknown
func MaxStatus(a, b Status) Status {
	if !a.IsKnown() {
		if b.IsKnown() {
			return b
		}
		return StatusUnknown
	}
	if !b.IsKnown() {
		return a
	}
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Quality 预算指令下的执行质量档位，数值越大越节省
type Quality int

const (
	QualityFull Quality = iota
	QualityReduced
	QualityMinimal
	QualityHalted
)

func (q Quality) String() string {
	switch q {
	case QualityFull:
		return "full"
	case QualityReduced:
		return "reduced"
	case QualityMinimal:
		return "minimal"
	case QualityHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// MaxRetries 按质量档位收紧重试次数
func (q Quality) MaxRetries(configured int) int {
	switch q {
	case QualityFull:
		return configured
	case QualityReduced:
		return min(configured, 1)
	default:
		return 0
	}
}

// Skips 判断该档位下叶子是否应被跳过
func (q Quality) Skips(optional bool) bool {
	switch q {
	case QualityHalted:
		return true
	case QualityMinimal:
		return optional
	default:
		return false
	}
}
