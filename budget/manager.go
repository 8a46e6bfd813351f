package budget

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/tree"
	"github.com/BaSui01/bstflow/types"
)

// Config 预算配置
type Config struct {
	Total       int64              `json:"total_token_budget" yaml:"total_token_budget"`
	Weights     map[string]float64 `json:"budget_weights,omitempty" yaml:"budget_weights"`
	Warn        float64            `json:"warn" yaml:"warn"`
	Throttle    float64            `json:"throttle" yaml:"throttle"`
	UsageAlerts []float64          `json:"usage_alerts,omitempty" yaml:"usage_alerts"`
}

// DefaultConfig 默认配置，Total 为 0 表示不限预算
func DefaultConfig() Config {
	return Config{
		Warn:        1.0,
		Throttle:    1.2,
		UsageAlerts: []float64{0.8, 0.9, 0.95},
	}
}

// AlertType 告警类型
type AlertType string

const (
	AlertProjectionWarn AlertType = "projection_warn"
	AlertThrottle       AlertType = "throttle"
	AlertExhaustion     AlertType = "exhaustion"
	AlertUsage          AlertType = "usage_threshold"
	AlertGrant          AlertType = "grant"
)

// Alert 预算告警
type Alert struct {
	Type      AlertType     `json:"type"`
	NodeID    string        `json:"node_id"`
	Message   string        `json:"message"`
	Threshold float64       `json:"threshold"`
	Current   float64       `json:"current"`
	Quality   types.Quality `json:"quality"`
	Timestamp time.Time     `json:"timestamp"`
}

// AlertHandler 告警处理器
type AlertHandler func(alert Alert)

// Pressure 已处于 minimal 仍预计超支的节点，需要升级 budget_exhaustion
type Pressure struct {
	NodeID     string
	Projection float64
	Budget     int64
	Requested  int64
}

// Manager 一次分析的预算管理器
type Manager struct {
	config  Config
	budgets map[string]*Budget
	root    *Budget
	logger  *zap.Logger

	mu            sync.RWMutex
	alertHandlers []AlertHandler
	usageFired    []bool
	history       []Alert
}

// NewManager 为整棵树建立预算
// config.Total <= 0 时预算不受限：只记账，不告警也不降级
func NewManager(t *tree.Tree, config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Warn <= 0 {
		config.Warn = 1.0
	}
	if config.Throttle < config.Warn {
		return nil, &types.ConfigError{Field: "alert_thresholds.throttle", Reason: "must not be below warn"}
	}
	for id, w := range config.Weights {
		if w < 0 {
			return nil, &types.ConfigError{Field: "budget_weights." + id, Reason: "must not be negative"}
		}
	}

	m := &Manager{
		config:     config,
		budgets:    make(map[string]*Budget, t.Size()),
		logger:     logger.With(zap.String("component", "budget_manager")),
		usageFired: make([]bool, len(config.UsageAlerts)),
	}

	allocation := Allocate(t, config.Total, config.Weights)
	t.Walk(func(n *tree.Node) bool {
		b := &Budget{
			nodeID:      n.ID,
			leavesTotal: int64(n.LeafCount()),
			allocated:   make(map[string]int64, len(n.Children)),
		}
		b.total.Store(allocation[n.ID])
		for _, c := range n.Children {
			b.allocated[c.ID] = allocation[c.ID]
		}
		m.budgets[n.ID] = b
		return true
	})
	t.Walk(func(n *tree.Node) bool {
		b := m.budgets[n.ID]
		if n.Parent != nil {
			b.parent = m.budgets[n.Parent.ID]
		}
		for _, c := range n.Children {
			b.children = append(b.children, m.budgets[c.ID])
		}
		return true
	})
	m.root = m.budgets[t.Root().ID]
	return m, nil
}

// Allocate 按权重自上而下分配预算
// 权重缺省为 1，整数余数归最后一个子节点，保证子节点之和等于父节点
func Allocate(t *tree.Tree, total int64, weights map[string]float64) map[string]int64 {
	out := make(map[string]int64, t.Size())
	var split func(n *tree.Node, amount int64)
	split = func(n *tree.Node, amount int64) {
		out[n.ID] = amount
		if n.IsLeaf() {
			return
		}
		ws := make([]float64, len(n.Children))
		var sum float64
		for i, c := range n.Children {
			w, ok := weights[c.ID]
			if !ok {
				w = 1
			}
			ws[i] = w
			sum += w
		}
		var given int64
		for i, c := range n.Children {
			var share int64
			switch {
			case i == len(n.Children)-1:
				share = amount - given
			case sum > 0:
				share = int64(float64(amount) * ws[i] / sum)
			}
			given += share
			split(c, share)
		}
	}
	split(t.Root(), total)
	return out
}

// Limited 是否配置了预算上限
func (m *Manager) Limited() bool { return m.config.Total > 0 }

// Budget 返回节点预算
func (m *Manager) Budget(nodeID string) *Budget { return m.budgets[nodeID] }

// Root 根节点预算
func (m *Manager) Root() *Budget { return m.root }

// OnAlert 注册告警处理器
func (m *Manager) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertHandlers = append(m.alertHandlers, handler)
}

// Alerts 已触发的全部告警，按触发顺序
func (m *Manager) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, len(m.history))
	copy(out, m.history)
	return out
}

// Consume 将消耗原子累加到节点及其所有祖先
func (m *Manager) Consume(nodeID string, n int64) {
	if n <= 0 {
		return
	}
	b := m.budgets[nodeID]
	for ; b != nil; b = b.parent {
		b.consumed.Add(n)
	}
	m.checkUsage()
}

// Exhausted 根预算已耗尽，即将启动的叶子应被跳过
func (m *Manager) Exhausted() bool {
	return m.Limited() && m.root.Consumed() >= m.root.Total()
}

// EffectiveQuality 叶子的有效质量：自身与全部祖先指令中最节省的一档
func (m *Manager) EffectiveQuality(nodeID string) types.Quality {
	q := types.QualityFull
	for b := m.budgets[nodeID]; b != nil; b = b.parent {
		q = max(q, b.Quality())
	}
	return q
}

// LeafDone 标记叶子完成并重新评估每个祖先的推算消耗
// 返回需要升级 budget_exhaustion 的节点，按从近到远排列
func (m *Manager) LeafDone(leafID string) []Pressure {
	leaf := m.budgets[leafID]
	if leaf == nil {
		return nil
	}
	leaf.leavesDone.Add(1)

	var pressures []Pressure
	for b := leaf.parent; b != nil; b = b.parent {
		b.leavesDone.Add(1)
		if !m.Limited() {
			continue
		}
		if p, ok := m.evaluate(b); ok {
			pressures = append(pressures, p)
		}
	}
	return pressures
}

func (m *Manager) evaluate(b *Budget) (Pressure, bool) {
	total := b.Total()
	if total <= 0 || b.Finished() {
		return Pressure{}, false
	}
	proj := b.Projection()
	ratio := proj / float64(total)

	if ratio > m.config.Warn && b.warned.CompareAndSwap(false, true) {
		m.fireAlert(Alert{
			Type:      AlertProjectionWarn,
			NodeID:    b.nodeID,
			Message:   fmt.Sprintf("projected consumption %.0f exceeds budget %d", proj, total),
			Threshold: m.config.Warn,
			Current:   ratio,
			Quality:   b.Quality(),
			Timestamp: time.Now(),
		})
	}
	if ratio <= m.config.Throttle {
		return Pressure{}, false
	}

	if q, raised := b.raiseQuality(types.QualityMinimal); raised {
		m.fireAlert(Alert{
			Type:      AlertThrottle,
			NodeID:    b.nodeID,
			Message:   "quality directive raised to " + q.String(),
			Threshold: m.config.Throttle,
			Current:   ratio,
			Quality:   q,
			Timestamp: time.Now(),
		})
		return Pressure{}, false
	}
	if b.Quality() != types.QualityMinimal || !b.exhausted.CompareAndSwap(false, true) {
		return Pressure{}, false
	}
	m.fireAlert(Alert{
		Type:      AlertExhaustion,
		NodeID:    b.nodeID,
		Message:   "still over budget at minimal quality",
		Threshold: m.config.Throttle,
		Current:   ratio,
		Quality:   types.QualityMinimal,
		Timestamp: time.Now(),
	})
	return Pressure{
		NodeID:     b.nodeID,
		Projection: proj,
		Budget:     total,
		Requested:  max(int64(proj)-total, 1),
	}, true
}

// Headroom 节点可让出的额度
func (m *Manager) Headroom(nodeID string) int64 {
	if b := m.budgets[nodeID]; b != nil && m.Limited() {
		return b.Headroom()
	}
	return 0
}

// Grant 由 granter 从自身余量中授予 nodeID 额外额度
// 余量不足时只授予余量部分，返回实际授予值
func (m *Manager) Grant(granterID, nodeID string, amount int64) int64 {
	granter, b := m.budgets[granterID], m.budgets[nodeID]
	if b == nil || amount <= 0 {
		return 0
	}
	if granter != nil {
		amount = min(amount, granter.Headroom())
	}
	if amount <= 0 {
		return 0
	}
	b.total.Add(amount)
	b.exhausted.Store(false)
	m.fireAlert(Alert{
		Type:      AlertGrant,
		NodeID:    nodeID,
		Message:   fmt.Sprintf("granted %d tokens by %s", amount, granterID),
		Current:   float64(b.Total()),
		Quality:   b.Quality(),
		Timestamp: time.Now(),
	})
	return amount
}

// Halt 停止子树中所有未启动的叶子
func (m *Manager) Halt(nodeID string) {
	if b := m.budgets[nodeID]; b != nil {
		b.setQuality(types.QualityHalted)
		m.logger.Warn("subtree halted", zap.String("node_id", nodeID))
	}
}

func (m *Manager) checkUsage() {
	if !m.Limited() || len(m.config.UsageAlerts) == 0 {
		return
	}
	ratio := float64(m.root.Consumed()) / float64(m.root.Total())

	m.mu.Lock()
	var fire []Alert
	for i, th := range m.config.UsageAlerts {
		if ratio >= th && !m.usageFired[i] {
			m.usageFired[i] = true
			fire = append(fire, Alert{
				Type:      AlertUsage,
				NodeID:    m.root.nodeID,
				Message:   fmt.Sprintf("token usage reached %.0f%% of budget", th*100),
				Threshold: th,
				Current:   ratio,
				Timestamp: time.Now(),
			})
		}
	}
	m.mu.Unlock()

	for _, a := range fire {
		m.fireAlert(a)
	}
}

func (m *Manager) fireAlert(alert Alert) {
	m.logger.Warn("budget alert",
		zap.String("type", string(alert.Type)),
		zap.String("node_id", alert.NodeID),
		zap.String("message", alert.Message),
		zap.Float64("threshold", alert.Threshold),
		zap.Float64("current", alert.Current))

	m.mu.Lock()
	m.history = append(m.history, alert)
	handlers := m.alertHandlers
	m.mu.Unlock()
	for _, handler := range handlers {
		handler(alert)
	}
}
