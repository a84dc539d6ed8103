package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"magicstore.ai/internal/protocol"
	"magicstore.ai/internal/sim/catalogs"
	"magicstore.ai/internal/sim/replication"
	"magicstore.ai/internal/sim/tuning"
	"magicstore.ai/internal/sim/world"
)

func startServer(t *testing.T) (*world.World, *websocket.Conn) {
	t.Helper()
	cats, err := catalogs.Defaults()
	require.NoError(t, err)
	tu := tuning.Defaults()
	tu.TickRateHz = 100
	w, err := world.New(world.WorldConfig{ID: "ops-test", Tuning: tu}, cats, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, nil).Handler())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		cancel()
		<-done
	})
	return w, conn
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "test",
	}))
	var welcome protocol.WelcomeMsg
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	return welcome
}

func roundTrip(t *testing.T, conn *websocket.Conn, op protocol.OpMsg) protocol.OpResultMsg {
	t.Helper()
	op.Type = protocol.TypeOp
	op.ProtocolVersion = protocol.Version
	require.NoError(t, conn.WriteJSON(op))
	var res protocol.OpResultMsg
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&res))
	require.Equal(t, protocol.TypeOpResult, res.Type)
	require.Equal(t, op.RequestID, res.RequestID)
	return res
}

func TestOps_RoundTrip(t *testing.T) {
	w, conn := startServer(t)

	welcome := hello(t, conn)
	require.Equal(t, protocol.TypeWelcome, welcome.Type)
	require.Equal(t, "ops-test", welcome.WorldID)
	require.True(t, strings.HasPrefix(welcome.SessionID, "S"))
	require.Equal(t, w.Catalogs().Items.Digest, welcome.Catalogs.Items.Digest)
	require.Equal(t, len(w.Catalogs().Containers.Palette), welcome.Catalogs.Containers.Count)

	build := roundTrip(t, conn, protocol.OpMsg{RequestID: "1", Kind: "build", Category: "REFRIGERATOR", Pos: [3]int{4, 0, 0}})
	require.True(t, build.OK, build.Message)
	require.Equal(t, "REFRIGERATOR@4,0,0", build.ID)

	spawn := roundTrip(t, conn, protocol.OpMsg{RequestID: "2", Kind: "SPAWN", Item: "MEAL_LICE"})
	require.True(t, spawn.OK, spawn.Message)

	store := roundTrip(t, conn, protocol.OpMsg{RequestID: "3", Kind: "STORE", Container: build.ID, Item: spawn.ID})
	require.True(t, store.OK, store.Message)

	consume := roundTrip(t, conn, protocol.OpMsg{RequestID: "4", Kind: "CONSUME", Container: "NOPE@0,0,0", Item: "MEAL_LICE"})
	require.False(t, consume.OK)
	require.Equal(t, protocol.ErrNoContainer, consume.Code)

	dup := roundTrip(t, conn, protocol.OpMsg{RequestID: "5", Kind: "BUILD", Category: "REFRIGERATOR", Pos: [3]int{4, 0, 0}})
	require.Equal(t, protocol.ErrConflict, dup.Code)

	bogus := roundTrip(t, conn, protocol.OpMsg{RequestID: "6", Kind: "TELEPORT"})
	require.Equal(t, protocol.ErrBadRequest, bogus.Code)
}

func TestOps_NonOpMessage(t *testing.T) {
	_, conn := startServer(t)
	hello(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING"}))
	var msg protocol.ErrorMsg
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, protocol.TypeError, msg.Type)
	require.Equal(t, protocol.ErrProtoBadRequest, msg.Code)
}

func TestOps_RequiresHello(t *testing.T) {
	_, conn := startServer(t)
	require.NoError(t, conn.WriteJSON(protocol.OpMsg{Type: protocol.TypeOp, ProtocolVersion: protocol.Version}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: X", world.ErrNoItem), protocol.ErrNoItem},
		{world.ErrContainerFull, protocol.ErrContainerFull},
		{world.ErrItemStored, protocol.ErrConflict},
		{fmt.Errorf("%w: PLASMA", replication.ErrUnknownKind), protocol.ErrUnknownKind},
		{world.ErrInvalidAmount, protocol.ErrBadRequest},
		{world.ErrStopped, protocol.ErrWorldStopped},
		{context.DeadlineExceeded, protocol.ErrTimeout},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CodeFor(tc.err), "%v", tc.err)
		require.True(t, protocol.IsKnownCode(CodeFor(tc.err)))
	}
}
