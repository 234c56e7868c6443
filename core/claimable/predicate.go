package claimable

import (
	"encoding/json"
	"fmt"

	"harvestpay/core/fault"
)

// PredicateType enumerates the closed set of claim predicate shapes the
// ledger evaluates at claim time.
type PredicateType uint8

const (
	PredicateUnconditional PredicateType = iota + 1
	PredicateBeforeAbsoluteTime
	PredicateNot
	PredicateAnd
	PredicateOr
)

func (t PredicateType) Valid() bool {
	switch t {
	case PredicateUnconditional, PredicateBeforeAbsoluteTime, PredicateNot, PredicateAnd, PredicateOr:
		return true
	default:
		return false
	}
}

func (t PredicateType) String() string {
	switch t {
	case PredicateUnconditional:
		return "unconditional"
	case PredicateBeforeAbsoluteTime:
		return "before_absolute_time"
	case PredicateNot:
		return "not"
	case PredicateAnd:
		return "and"
	case PredicateOr:
		return "or"
	default:
		return "unknown"
	}
}

// Predicate is a boolean condition over ledger time gating a claim. The
// engine only ever constructs the two escrow shapes returned by
// BuildEscrowPredicates; the full variant set exists so balances read back
// from the ledger can be decoded and evaluated.
type Predicate struct {
	Type    PredicateType
	AbsTime int64
	Inner   *Predicate
	Left    *Predicate
	Right   *Predicate
}

// Unconditional is satisfied at every instant.
func Unconditional() Predicate {
	return Predicate{Type: PredicateUnconditional}
}

// BeforeAbsoluteTime is satisfied at or before the given unix timestamp. The
// boundary instant itself satisfies the predicate.
func BeforeAbsoluteTime(t int64) Predicate {
	return Predicate{Type: PredicateBeforeAbsoluteTime, AbsTime: t}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return Predicate{Type: PredicateNot, Inner: &p}
}

// And is satisfied when both operands are.
func And(l, r Predicate) Predicate {
	return Predicate{Type: PredicateAnd, Left: &l, Right: &r}
}

// Or is satisfied when either operand is.
func Or(l, r Predicate) Predicate {
	return Predicate{Type: PredicateOr, Left: &l, Right: &r}
}

// Clone returns a deep copy of the predicate tree, so mutating the copy's
// subtrees never reaches the original.
func (p Predicate) Clone() Predicate {
	out := Predicate{Type: p.Type, AbsTime: p.AbsTime}
	if p.Inner != nil {
		inner := p.Inner.Clone()
		out.Inner = &inner
	}
	if p.Left != nil {
		left := p.Left.Clone()
		out.Left = &left
	}
	if p.Right != nil {
		right := p.Right.Clone()
		out.Right = &right
	}
	return out
}

// SatisfiedAt evaluates the predicate at the given unix timestamp. This is a
// local mirror of the ledger's evaluation used by tests and pre-flight
// checks; the ledger remains the authority at claim time.
func (p Predicate) SatisfiedAt(t int64) bool {
	switch p.Type {
	case PredicateUnconditional:
		return true
	case PredicateBeforeAbsoluteTime:
		return t <= p.AbsTime
	case PredicateNot:
		return p.Inner != nil && !p.Inner.SatisfiedAt(t)
	case PredicateAnd:
		return p.Left != nil && p.Right != nil && p.Left.SatisfiedAt(t) && p.Right.SatisfiedAt(t)
	case PredicateOr:
		return (p.Left != nil && p.Left.SatisfiedAt(t)) || (p.Right != nil && p.Right.SatisfiedAt(t))
	default:
		return false
	}
}

// Validate checks structural well-formedness: known type, operands present
// where the shape requires them, positive timestamps.
func (p Predicate) Validate() error {
	switch p.Type {
	case PredicateUnconditional:
		return nil
	case PredicateBeforeAbsoluteTime:
		if p.AbsTime <= 0 {
			return fmt.Errorf("claimable: predicate timestamp must be positive, got %d", p.AbsTime)
		}
		return nil
	case PredicateNot:
		if p.Inner == nil {
			return fmt.Errorf("claimable: not predicate missing operand")
		}
		return p.Inner.Validate()
	case PredicateAnd, PredicateOr:
		if p.Left == nil || p.Right == nil {
			return fmt.Errorf("claimable: %s predicate missing operand", p.Type)
		}
		if err := p.Left.Validate(); err != nil {
			return err
		}
		return p.Right.Validate()
	default:
		return fmt.Errorf("claimable: unknown predicate type %d", p.Type)
	}
}

// BuildEscrowPredicates constructs the complementary escrow pair for a
// deadline: the farmer's side is claimable at or before the deadline, the
// buyer's side strictly after it. Exactly one of the two is satisfiable at
// any instant, with the boundary belonging to the farmer.
func BuildEscrowPredicates(deadline int64) (farmer, buyer Predicate, err error) {
	if deadline <= 0 {
		return Predicate{}, Predicate{}, fault.Validationf("deadline", "not a valid absolute timestamp: %d", deadline)
	}
	farmer = BeforeAbsoluteTime(deadline)
	buyer = Not(farmer)
	return farmer, buyer, nil
}

type predicateJSON struct {
	Type    string           `json:"type"`
	AbsTime *int64           `json:"absTime,omitempty"`
	Inner   *json.RawMessage `json:"inner,omitempty"`
	Left    *json.RawMessage `json:"left,omitempty"`
	Right   *json.RawMessage `json:"right,omitempty"`
}

// MarshalJSON encodes the predicate in the gateway wire form.
func (p Predicate) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := predicateJSON{Type: p.Type.String()}
	switch p.Type {
	case PredicateBeforeAbsoluteTime:
		at := p.AbsTime
		out.AbsTime = &at
	case PredicateNot:
		raw, err := json.Marshal(p.Inner)
		if err != nil {
			return nil, err
		}
		msg := json.RawMessage(raw)
		out.Inner = &msg
	case PredicateAnd, PredicateOr:
		left, err := json.Marshal(p.Left)
		if err != nil {
			return nil, err
		}
		right, err := json.Marshal(p.Right)
		if err != nil {
			return nil, err
		}
		leftMsg, rightMsg := json.RawMessage(left), json.RawMessage(right)
		out.Left, out.Right = &leftMsg, &rightMsg
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the gateway wire form.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var in predicateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case "unconditional":
		*p = Unconditional()
	case "before_absolute_time":
		if in.AbsTime == nil {
			return fmt.Errorf("claimable: before_absolute_time predicate missing absTime")
		}
		*p = BeforeAbsoluteTime(*in.AbsTime)
	case "not":
		if in.Inner == nil {
			return fmt.Errorf("claimable: not predicate missing inner")
		}
		var inner Predicate
		if err := json.Unmarshal(*in.Inner, &inner); err != nil {
			return err
		}
		*p = Not(inner)
	case "and", "or":
		if in.Left == nil || in.Right == nil {
			return fmt.Errorf("claimable: %s predicate missing operand", in.Type)
		}
		var left, right Predicate
		if err := json.Unmarshal(*in.Left, &left); err != nil {
			return err
		}
		if err := json.Unmarshal(*in.Right, &right); err != nil {
			return err
		}
		if in.Type == "and" {
			*p = And(left, right)
		} else {
			*p = Or(left, right)
		}
	default:
		return fmt.Errorf("claimable: unknown predicate type %q", in.Type)
	}
	return p.Validate()
}
