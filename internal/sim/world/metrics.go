package world

import "time"

type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Containers  int `json:"containers"`
	Replicating int `json:"replicating"`
	Items       int `json:"items"`
	WorldItems  int `json:"world_items"`
	Observers   int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox    int `json:"inbox"`
	Join     int `json:"join"`
	Leave    int `json:"leave"`
	Reconfig int `json:"reconfig"`
}

// Metrics returns the figures published at the end of the last tick. Safe to
// call from any goroutine.
func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m := w.metrics.Load()
	if m == nil {
		return WorldMetrics{}
	}
	return *m
}

func (w *World) publishMetrics(nowTick uint64, took time.Duration) {
	m := WorldMetrics{
		Tick:       nowTick,
		Containers: len(w.containers),
		Items:      len(w.items),
		Observers:  len(w.streams),
		QueueDepths: QueueDepths{
			Inbox:    len(w.inbox),
			Join:     len(w.observerJoin),
			Leave:    len(w.observerLeave),
			Reconfig: len(w.reconfig),
		},
		StepMS: float64(took.Microseconds()) / 1000,
	}
	for _, c := range w.containers {
		if c.Replicating {
			m.Replicating++
		}
	}
	for _, ids := range w.itemsAt {
		m.WorldItems += len(ids)
	}
	w.metrics.Store(&m)
}
