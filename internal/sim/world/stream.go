package world

import (
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"magicstore.ai/internal/observerproto"
	"magicstore.ai/internal/sim/world/kernel/model"
)

type ObserverJoinRequest struct {
	SessionID string
	// Containers filters the stream; empty streams every container whose
	// category is shown in the UI.
	Containers []string
	MaxRows    int
	Out        chan []byte
}

type observerStream struct {
	id         string
	containers map[string]bool
	maxRows    int
	out        chan []byte
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	// A re-join replaces the previous session with the same id.
	if old := w.streams[req.SessionID]; old != nil && old.out != req.Out {
		close(old.out)
	}
	s := &observerStream{id: req.SessionID, maxRows: req.MaxRows, out: req.Out}
	if len(req.Containers) > 0 {
		s.containers = map[string]bool{}
		for _, id := range req.Containers {
			s.containers[id] = true
		}
	}
	w.streams[req.SessionID] = s
	w.log.Debug("observer joined", zap.String("session", req.SessionID), zap.Int("containers", len(req.Containers)))
}

func (w *World) handleObserverLeave(sessionID string) {
	s := w.streams[sessionID]
	if s == nil {
		return
	}
	delete(w.streams, sessionID)
	close(s.out)
	w.log.Debug("observer left", zap.String("session", sessionID))
}

func (w *World) closeStreams() {
	for id, s := range w.streams {
		close(s.out)
		delete(w.streams, id)
	}
}

func (w *World) broadcastContents(nowTick uint64) {
	if len(w.streams) == 0 {
		return
	}
	ids := make([]string, 0, len(w.streams))
	for id := range w.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	containers := w.sortedContainers()
	for _, id := range ids {
		s := w.streams[id]
		msg := observerproto.ContentsMsg{
			Type:            "CONTENTS",
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Containers:      []observerproto.ContainerContents{},
		}
		for _, c := range containers {
			if !w.streamWants(s, c) {
				continue
			}
			sum := w.summarize(c, s.maxRows)
			msg.Containers = append(msg.Containers, observerproto.ContainerContents{
				ID:          c.ID(),
				Category:    c.Type,
				Replicating: c.Replicating,
				Full:        w.fullFor(c, 0),
				Summary:     sum,
				Lines:       sum.Lines(),
			})
		}
		b, err := json.Marshal(msg)
		if err != nil {
			w.log.Warn("contents marshal failed", zap.Error(err))
			continue
		}
		sendLatest(s.out, b)
	}
}

func (w *World) streamWants(s *observerStream, c *model.Container) bool {
	if s.containers != nil {
		return s.containers[c.ID()]
	}
	def, _ := w.catalogs.Container(c.Type)
	return def.ShowInUI
}

// sendLatest never blocks the loop: when the client lags, the oldest queued
// message is dropped.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
