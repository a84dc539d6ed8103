package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"magicstore.ai/internal/protocol"
	"magicstore.ai/internal/sim/replication"
	"magicstore.ai/internal/sim/world"
	"magicstore.ai/internal/transport/observer"
)

// opTimeout bounds how long one OP waits for the world loop.
const opTimeout = 5 * time.Second

// Server accepts operator connections that submit world ops over a
// WebSocket and receive one OP_RESULT per OP, in order.
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
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		log := s.log.With(zap.String("session", sessionID))
		log.Info("operator connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Ops are submitted one at a time so results keep the
		// client's order.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.handle(ctx, msg)
			if resp == nil {
				continue
			}
			b, err := json.Marshal(resp)
			if err != nil {
				log.Warn("marshal reply failed", zap.Error(err))
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
		}

		cancel()
		<-writerDone
		log.Info("operator disconnected")
	}
}

func (s *Server) handle(ctx context.Context, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return errorMsg(protocol.ErrProtoBadRequest, "bad json")
	}
	if base.Type != protocol.TypeOp {
		return errorMsg(protocol.ErrProtoBadRequest, "expected OP")
	}
	var op protocol.OpMsg
	if err := json.Unmarshal(msg, &op); err != nil {
		return errorMsg(protocol.ErrProtoBadRequest, "bad OP")
	}
	if op.ProtocolVersion != protocol.Version {
		return errorMsg(protocol.ErrProtoBadRequest, "bad protocol_version")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.world.Submit(opCtx, world.Op{
		Kind:      world.OpKind(strings.ToUpper(op.Kind)),
		Category:  op.Category,
		Container: op.Container,
		Item:      op.Item,
		Pos:       op.Pos,
		Mass:      op.Mass,
	})
	reply := protocol.OpResultMsg{
		Type:            protocol.TypeOpResult,
		ProtocolVersion: protocol.Version,
		RequestID:       op.RequestID,
		Tick:            res.Tick,
		OK:              err == nil,
		ID:              res.ID,
		Mass:            res.Mass,
	}
	if err != nil {
		reply.Code = CodeFor(err)
		reply.Message = err.Error()
	}
	return reply
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	cats := s.world.Catalogs()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "S" + uuid.NewString(),
		WorldID:         s.world.ID(),
		Tick:            s.world.CurrentTick(),
		Catalogs: protocol.CatalogDigests{
			Items:      protocol.DigestRef{Digest: cats.Items.Digest, Count: len(cats.Items.Palette)},
			Containers: protocol.DigestRef{Digest: cats.Containers.Digest, Count: len(cats.Containers.Palette)},
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return welcome.SessionID, out
}

// CodeFor maps a world error onto a protocol error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, world.ErrNoContainer):
		return protocol.ErrNoContainer
	case errors.Is(err, world.ErrNoItem):
		return protocol.ErrNoItem
	case errors.Is(err, world.ErrContainerFull):
		return protocol.ErrContainerFull
	case errors.Is(err, world.ErrItemStored), errors.Is(err, world.ErrOccupied):
		return protocol.ErrConflict
	case errors.Is(err, world.ErrUnknownContainer), errors.Is(err, replication.ErrUnknownKind):
		return protocol.ErrUnknownKind
	case errors.Is(err, world.ErrInvalidAmount):
		return protocol.ErrBadRequest
	case errors.Is(err, world.ErrStopped):
		return protocol.ErrWorldStopped
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrTimeout
	case strings.HasPrefix(err.Error(), "unknown op kind"):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
