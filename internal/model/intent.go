package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// IntentKind 是意图分类的封闭枚举。
type IntentKind string

const (
	IntentConsultation  IntentKind = "consultation"
	IntentGeneration    IntentKind = "generation"
	IntentBoth          IntentKind = "both"
	IntentInfoGathering IntentKind = "info_gathering"
)

// Valid 判断 kind 是否属于封闭枚举。
func (k IntentKind) Valid() bool {
	switch k {
	case IntentConsultation, IntentGeneration, IntentBoth, IntentInfoGathering:
		return true
	}
	return false
}

// involvesGeneration 表示该意图会走文书生成流程，只有这类意图允许携带 TargetType。
func (k IntentKind) involvesGeneration() bool {
	return k == IntentGeneration || k == IntentBoth || k == IntentInfoGathering
}

var ErrInvalidIntent = errors.New("invalid intent decision")

// IntentDecision 是一条消息的分类结果。字段不导出，只能通过 NewIntentDecision、DefaultIntent
// 或 UnmarshalJSON 得到，保证 Kind 与两个布尔标志一致。零值不是有效决策。
type IntentDecision struct {
	kind              IntentKind
	targetType        DocumentType
	confidence        float64
	needsConsultation bool
	needsGeneration   bool
}

// NewIntentDecision 校验并构造一个意图决策。
func NewIntentDecision(kind IntentKind, target DocumentType, confidence float64) (IntentDecision, error) {
	if !kind.Valid() {
		return IntentDecision{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, kind)
	}
	if confidence < 0 || confidence > 1 {
		return IntentDecision{}, fmt.Errorf("%w: confidence %.3f out of range", ErrInvalidIntent, confidence)
	}
	if target != "" && !kind.involvesGeneration() {
		return IntentDecision{}, fmt.Errorf("%w: target type %q not allowed for %s", ErrInvalidIntent, target, kind)
	}
	return IntentDecision{
		kind:              kind,
		targetType:        target,
		confidence:        confidence,
		needsConsultation: kind == IntentConsultation || kind == IntentBoth,
		needsGeneration:   kind.involvesGeneration(),
	}, nil
}

// DefaultIntent 是分类失败或置信度过低时的安全默认值。
func DefaultIntent() IntentDecision {
	return IntentDecision{
		kind:              IntentConsultation,
		confidence:        0,
		needsConsultation: true,
	}
}

func (d IntentDecision) Kind() IntentKind         { return d.kind }
func (d IntentDecision) TargetType() DocumentType { return d.targetType }
func (d IntentDecision) Confidence() float64      { return d.confidence }
func (d IntentDecision) NeedsConsultation() bool  { return d.needsConsultation }
func (d IntentDecision) NeedsGeneration() bool    { return d.needsGeneration }

// IsDefault 判断决策是否为安全默认值。
func (d IntentDecision) IsDefault() bool {
	return d == DefaultIntent()
}

type intentJSON struct {
	Kind              IntentKind    `json:"kind"`
	TargetType        *DocumentType `json:"targetType"`
	Confidence        float64       `json:"confidence"`
	NeedsConsultation bool          `json:"needsConsultation"`
	NeedsGeneration   bool          `json:"needsGeneration"`
}

// MarshalJSON 输出 targetType 为 null（当未设置时）。
func (d IntentDecision) MarshalJSON() ([]byte, error) {
	out := intentJSON{
		Kind:              d.kind,
		Confidence:        d.confidence,
		NeedsConsultation: d.needsConsultation,
		NeedsGeneration:   d.needsGeneration,
	}
	if d.targetType != "" {
		t := d.targetType
		out.TargetType = &t
	}
	return json.Marshal(out)
}

// UnmarshalJSON 重新走 NewIntentDecision 校验，布尔标志以 Kind 推导为准。
func (d *IntentDecision) UnmarshalJSON(data []byte) error {
	var in intentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var target DocumentType
	if in.TargetType != nil {
		target = *in.TargetType
	}
	decision, err := NewIntentDecision(in.Kind, target, in.Confidence)
	if err != nil {
		return err
	}
	*d = decision
	return nil
}
