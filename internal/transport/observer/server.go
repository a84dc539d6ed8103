package observer

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"magicstore.ai/internal/observerproto"
	"magicstore.ai/internal/sim/world"
	"magicstore.ai/internal/sim/world/feature/storage/contents"
)

const maxSubscribeContainers = 1024

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		rep := cfg.Tuning.Replication
		cats := s.world.Catalogs()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz:       cfg.Tuning.TickRateHz,
				RefillEveryTicks: rep.RefillEveryTicks,
				LowWater:         rep.LowWater,
				HighWater:        rep.HighWater,
				CooldownMs:       rep.CooldownMs,
				Uncapped:         rep.ConsumablesUncapped,
			},
			ItemPalette:      cats.Items.Palette,
			ContainerPalette: cats.Containers.Palette,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := "O" + uuid.NewString()
		log := s.log.With(zap.String("session", sid))
		out := make(chan []byte, 4)
		if !s.join(sid, sub, out) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		log.Debug("observer subscribed", zap.Int("containers", len(sub.Containers)))

		// Writer goroutine. A re-SUBSCRIBE swaps the channel and the world
		// closes the old one, so the writer follows the latest. It closes the
		// conn on exit to unblock the reader when the world stops.
		outs := make(chan chan []byte, 1)
		quit := make(chan struct{})
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer conn.Close()
			cur := out
			for {
				select {
				case <-quit:
					return
				case next := <-outs:
					cur = next
				case b, ok := <-cur:
					if !ok {
						select {
						case next := <-outs:
							cur = next
							continue
						case <-quit:
						case <-time.After(time.Second):
						}
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := decodeSubscribe(msg)
			if !ok {
				continue
			}
			next := make(chan []byte, 4)
			if !s.join(sid, sub, next) {
				// Drop updates under load; the client may resend.
				continue
			}
			select {
			case outs <- next:
			case <-writerDone:
			}
		}

		select {
		case s.world.ObserverLeave() <- sid:
		case <-time.After(time.Second):
			// World loop is stopping; it closes every stream itself.
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		close(quit)
		<-writerDone
		log.Debug("observer left")
	}
}

func (s *Server) join(sid string, sub observerproto.SubscribeMsg, out chan []byte) bool {
	req := world.ObserverJoinRequest{
		SessionID:  sid,
		Containers: sub.Containers,
		MaxRows:    sub.MaxRows,
		Out:        out,
	}
	select {
	case s.world.ObserverJoin() <- req:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.MaxRows <= 0 {
		sub.MaxRows = contents.DefaultMaxRows
	}
	if sub.MaxRows > 100 {
		sub.MaxRows = 100
	}
	if len(sub.Containers) > maxSubscribeContainers {
		sub.Containers = sub.Containers[:maxSubscribeContainers]
	}
}

// IsLoopbackRemote reports whether an http.Request.RemoteAddr is a loopback
// address.
func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
