package aggregate

import "github.com/BaSui01/bstflow/types"

// Contribution 子节点状态对父节点的贡献
// error 子节点贡献 unhealthy，unknown 不贡献
func Contribution(s types.Status) types.Status {
	if s == types.StatusError {
		return types.StatusUnhealthy
	}
	if !s.IsKnown() {
		return types.StatusUnknown
	}
	return s
}

// FoldStatus 将子节点状态与节点自身状态按严重程度取最大
func FoldStatus(own types.Status, children ...types.Status) types.Status {
	result := own
	for _, c := range children {
		result = types.MaxStatus(result, Contribution(c))
	}
	return result
}
