package events

import (
	"fmt"
)

// 权限状态负载的字段名，与前端读取的键保持一致
const (
	keyIsAuthorized = "isAuthorized"
	keyTitle        = "title"
	keyMessage      = "message"
	keyShowButton   = "showButton"
	keyStatus       = "status"
	keyCapability   = "capability"
	keySeq          = "seq"
)

// StatusPayload PERMISSION_STATUS / PERMISSION_CHECK_RESULT 的负载
//
// Seq 由后台单调递增分配，0 表示未编号。
type StatusPayload struct {
	IsAuthorized bool   `json:"isAuthorized"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	ShowButton   bool   `json:"showButton"`
	Status       string `json:"status"`
	Capability   string `json:"capability"`
	Seq          uint64 `json:"seq"`
}

// ToData 转换为事件负载
func (p StatusPayload) ToData() map[string]interface{} {
	return map[string]interface{}{
		keyIsAuthorized: p.IsAuthorized,
		keyTitle:        p.Title,
		keyMessage:      p.Message,
		keyShowButton:   p.ShowButton,
		keyStatus:       p.Status,
		keyCapability:   p.Capability,
		keySeq:          p.Seq,
	}
}

// ParseStatusPayload 从事件负载解析权限状态
//
// isAuthorized 是唯一必填字段。前端经 JSON 传回的数字是 float64，这里一并处理。
func ParseStatusPayload(data map[string]interface{}) (StatusPayload, error) {
	var p StatusPayload

	authorized, ok := data[keyIsAuthorized].(bool)
	if !ok {
		return p, fmt.Errorf("status payload: missing %q", keyIsAuthorized)
	}
	p.IsAuthorized = authorized
	p.Title, _ = data[keyTitle].(string)
	p.Message, _ = data[keyMessage].(string)
	p.ShowButton, _ = data[keyShowButton].(bool)
	p.Status, _ = data[keyStatus].(string)
	p.Capability, _ = data[keyCapability].(string)

	switch seq := data[keySeq].(type) {
	case uint64:
		p.Seq = seq
	case int:
		if seq > 0 {
			p.Seq = uint64(seq)
		}
	case int64:
		if seq > 0 {
			p.Seq = uint64(seq)
		}
	case float64:
		if seq > 0 {
			p.Seq = uint64(seq)
		}
	}

	return p, nil
}
