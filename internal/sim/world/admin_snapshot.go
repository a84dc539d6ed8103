package world

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to export a snapshot to the
// sink now instead of waiting for the cadence. It is safe to call from other
// goroutines.
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	resp := make(chan adminSnapshotResp, 1)

	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-w.done:
		return 0, ErrStopped
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-w.done:
		return 0, ErrStopped
	}
}

func (w *World) handleAdminSnapshot(req adminSnapshotReq) {
	// The last completed tick; state between steps is its end state.
	snapTick := uint64(0)
	if cur := w.tick.Load(); cur > 0 {
		snapTick = cur - 1
	}

	resp := adminSnapshotResp{Tick: snapTick}
	if w.snapshotSink == nil {
		resp.Err = "snapshot sink not configured"
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			resp.Err = "snapshot sink backpressure"
		}
	}
	select {
	case req.Resp <- resp:
	default:
	}
}
