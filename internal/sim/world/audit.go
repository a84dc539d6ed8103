package world

import (
	"time"

	"go.uber.org/zap"

	"magicstore.ai/internal/sim/world/kernel/model"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick   uint64       `json:"tick"`
	Ops    []RecordedOp `json:"ops,omitempty"`
	Digest string       `json:"digest"`
}

type AuditEntry struct {
	Tick      uint64         `json:"tick"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"` // e.g. "REFILL", "CONTAINER_DESTROY"
	Container string         `json:"container,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Pos       [3]int         `json:"pos"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func (w *World) auditEvent(tick uint64, actor string, action string, pos Vec3i, reason string, details map[string]any) {
	entry := AuditEntry{
		Tick:    tick,
		Actor:   actor,
		Action:  action,
		Pos:     pos.ToArray(),
		Reason:  reason,
		Details: details,
	}
	if details != nil {
		if id, ok := details["container"].(string); ok {
			entry.Container = id
		}
		if kind, ok := details["item"].(string); ok {
			entry.Kind = kind
		}
	}
	w.writeAudit(entry)
}

// auditReplication adapts engine audit events. The engine reports simulated
// time; entries are keyed by the tick being stepped.
func (w *World) auditReplication(_ time.Duration, action, containerID, kind string, details map[string]any) {
	var pos Vec3i
	if _, p, ok := model.ParseContainerID(containerID); ok {
		pos = p
	}
	w.writeAudit(AuditEntry{
		Tick:      w.tick.Load(),
		Actor:     "REPLICATION",
		Action:    action,
		Container: containerID,
		Kind:      kind,
		Pos:       pos.ToArray(),
		Details:   details,
	})
}

func (w *World) writeAudit(entry AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	if err := w.auditLogger.WriteAudit(entry); err != nil {
		w.log.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
