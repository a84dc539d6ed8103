package world

import (
	"fmt"

	"magicstore.ai/internal/sim/world/kernel/model"
)

type OpKind string

const (
	OpBuild    OpKind = "BUILD"
	OpSpawn    OpKind = "SPAWN"
	OpDrop     OpKind = "DROP"
	OpStore    OpKind = "STORE"
	OpWithdraw OpKind = "WITHDRAW"
	OpConsume  OpKind = "CONSUME"
	OpDestroy  OpKind = "DESTROY"
)

// Op is one queued world mutation. Fields not used by Kind are ignored:
//
//	BUILD     Category, Pos
//	SPAWN     Item (kind), Mass
//	DROP      Item (id), Pos
//	STORE     Container, Item (id)
//	WITHDRAW  Container, Item (kind), Mass
//	CONSUME   Container, Item (kind)
//	DESTROY   Container
type Op struct {
	Kind      OpKind  `json:"kind"`
	Category  string  `json:"category,omitempty"`
	Container string  `json:"container,omitempty"`
	Item      string  `json:"item,omitempty"`
	Pos       [3]int  `json:"pos,omitempty"`
	Mass      float64 `json:"mass,omitempty"`

	Resp chan OpResult `json:"-"`
}

type OpResult struct {
	Tick uint64
	// ID is the container or item the op produced or touched.
	ID   string
	Mass float64
	Err  error
}

type RecordedOp struct {
	Op    Op      `json:"op"`
	ID    string  `json:"id,omitempty"`
	Mass  float64 `json:"mass,omitempty"`
	Error string  `json:"error,omitempty"`
}

func recordOp(op Op, res OpResult) RecordedOp {
	op.Resp = nil
	r := RecordedOp{Op: op, ID: res.ID, Mass: res.Mass}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

func (w *World) apply(op Op) OpResult {
	pos := model.Vec3iFromArray(op.Pos)
	switch op.Kind {
	case OpBuild:
		id, err := w.BuildContainer(op.Category, pos)
		return OpResult{ID: id, Err: err}
	case OpSpawn:
		id, err := w.SpawnItem(op.Item, op.Mass)
		return OpResult{ID: id, Err: err}
	case OpDrop:
		id, err := w.DropItem(op.Item, pos)
		return OpResult{ID: id, Err: err}
	case OpStore:
		return OpResult{ID: op.Item, Err: w.Store(op.Container, op.Item)}
	case OpWithdraw:
		id, mass, err := w.Withdraw(op.Container, op.Item, op.Mass)
		return OpResult{ID: id, Mass: mass, Err: err}
	case OpConsume:
		id, err := w.Consume(op.Container, op.Item)
		return OpResult{ID: id, Err: err}
	case OpDestroy:
		return OpResult{ID: op.Container, Err: w.DestroyContainer(op.Container)}
	default:
		return OpResult{Err: fmt.Errorf("unknown op kind %q", op.Kind)}
	}
}
