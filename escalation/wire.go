package escalation

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/bstflow/types"
)

// EncodeRequest 编码升级请求
func EncodeRequest(req types.EscalationRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode escalation request: %w", err)
	}
	return data, nil
}

// DecodeRequest 解码升级请求
func DecodeRequest(data []byte) (types.EscalationRequest, error) {
	var req types.EscalationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return types.EscalationRequest{}, fmt.Errorf("decode escalation request: %w", err)
	}
	return req, nil
}

// EncodeResponse 编码决策响应
func EncodeResponse(resp types.DecisionResponse) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode decision response: %w", err)
	}
	return data, nil
}

// DecodeResponse 解码决策响应
func DecodeResponse(data []byte) (types.DecisionResponse, error) {
	var resp types.DecisionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.DecisionResponse{}, fmt.Errorf("decode decision response: %w", err)
	}
	return resp, nil
}

// transferRequest 经编解码复制请求，模拟跨节点边界的值传递
func transferRequest(req types.EscalationRequest) (types.EscalationRequest, error) {
	data, err := EncodeRequest(req)
	if err != nil {
		return types.EscalationRequest{}, err
	}
	return DecodeRequest(data)
}

func transferResponse(resp types.DecisionResponse) (types.DecisionResponse, error) {
	data, err := EncodeResponse(resp)
	if err != nil {
		return types.DecisionResponse{}, err
	}
	return DecodeResponse(data)
}

// NormalizeVote 将投票值规整为 JSON 解码后的形态，便于跨边界比较
// 无法编码的值按弃权处理
func NormalizeVote(v types.Vote) types.Vote {
	if v.Abstain || v.Value == nil {
		return v
	}
	data, err := json.Marshal(v.Value)
	if err != nil {
		v.Value = nil
		v.Abstain = true
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		v.Value = nil
		v.Abstain = true
		return v
	}
	v.Value = out
	return v
}

// voteKey 投票值的规范键，encoding/json 对 map 键排序，结果稳定
func voteKey(v types.Vote) string {
	data, err := json.Marshal(v.Value)
	if err != nil {
		return ""
	}
	return string(data)
}
