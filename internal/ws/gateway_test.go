package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/auth"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

type gatewayFixture struct {
	gateway *Gateway
	hub     *Hub
	tokens  *auth.TokenManager
	chats   *mocks.ChatRepositoryMock
	users   *mocks.UserRepositoryMock
	sender  *mocks.MessageSenderMock
}

func newGatewayFixture() *gatewayFixture {
	hub := NewHub()
	tokens := auth.NewTokenManager("test-secret", "test", time.Hour)
	chats := new(mocks.ChatRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	sender := new(mocks.MessageSenderMock)
	return &gatewayFixture{
		gateway: NewGateway(hub, tokens, chats, users, sender),
		hub:     hub,
		tokens:  tokens,
		chats:   chats,
		users:   users,
		sender:  sender,
	}
}

func (f *gatewayFixture) authedClient(t *testing.T, userID string) *Client {
	t.Helper()
	client := newTestClient()
	token, err := f.tokens.Issue(userID)
	require.NoError(t, err)
	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"connect","token":"`+token+`"}`))
	event := receiveEvent(t, client)
	require.Equal(t, "connected", event["type"])
	return client
}

func TestGatewayRejectsEventsWhileUnauthenticated(t *testing.T) {
	f := newGatewayFixture()
	client := newTestClient()

	for _, raw := range []string{
		`{"type":"join_chat","chatId":"c1"}`,
		`{"type":"send_message","chatId":"c1","text":"hi"}`,
		`{"type":"new_chat","chatId":"c1"}`,
	} {
		f.gateway.dispatch(context.Background(), client, []byte(raw))
		event := receiveEvent(t, client)
		assert.Equal(t, "error", event["type"])
		assert.Equal(t, "authentication required", event["message"])
	}
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGatewayConnectWithInvalidToken(t *testing.T) {
	f := newGatewayFixture()
	client := newTestClient()

	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"connect","token":"garbage"}`))

	event := receiveEvent(t, client)
	assert.Equal(t, "error", event["type"])
	assert.Empty(t, client.userID, "connection must stay unauthenticated")
}

func TestGatewayConnectJoinsPersonalRoom(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "u1")

	assert.Equal(t, "u1", client.userID)
	assert.Contains(t, f.hub.rooms, "u1")
}

func TestGatewayConnectUsesTokenFromUpgradeQuery(t *testing.T) {
	f := newGatewayFixture()
	client := newTestClient()
	token, err := f.tokens.Issue("u1")
	require.NoError(t, err)
	client.pendingToken = token

	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"connect"}`))

	event := receiveEvent(t, client)
	assert.Equal(t, "connected", event["type"])
	assert.Equal(t, "u1", client.userID)
}

func TestGatewayJoinChatBroadcastsToRoom(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "u1")
	chat := models.Chat{ID: "c1", User1ID: "u1", User2ID: "u2"}
	f.chats.On("GetChat", mock.Anything, "c1").Return(chat, nil).Once()

	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"join_chat","chatId":"c1"}`))

	event := receiveEvent(t, client)
	assert.Equal(t, "chat_joined", event["type"])
	assert.Equal(t, "c1", event["chatId"])
	assert.Contains(t, f.hub.rooms["c1"], client)
	f.chats.AssertExpectations(t)
}

func TestGatewayJoinChatDeniedLooksLikeNotFound(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "intruder")

	f.chats.On("GetChat", mock.Anything, "c1").
		Return(models.Chat{ID: "c1", User1ID: "u1", User2ID: "u2"}, nil).Once()
	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"join_chat","chatId":"c1"}`))
	denied := receiveEvent(t, client)

	f.chats.On("GetChat", mock.Anything, "missing").
		Return(models.Chat{}, repositories.ErrChatNotFound).Once()
	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"join_chat","chatId":"missing"}`))
	missing := receiveEvent(t, client)

	assert.Equal(t, denied, missing, "access denied must be indistinguishable from not found")
	assert.NotContains(t, f.hub.rooms, "c1")
}

func TestGatewaySendMessageDelegatesToService(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "u1")

	view := models.MessageView{MessageID: "m1", ChatID: "c1", Sender: "alice", Text: "hi"}
	f.sender.On("Send", mock.Anything, "u1", "c1", "hi").Return(view, nil).Once()

	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"send_message","chatId":"c1","text":"hi"}`))

	assert.Empty(t, client.send, "no error event on success; the service broadcasts new_message")
	f.sender.AssertExpectations(t)
}

func TestGatewaySendMessageChatNotFound(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "u1")

	f.sender.On("Send", mock.Anything, "u1", "nope", "hi").
		Return(models.MessageView{}, repositories.ErrChatNotFound).Once()

	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"send_message","chatId":"nope","text":"hi"}`))

	event := receiveEvent(t, client)
	assert.Equal(t, "error", event["type"])
	assert.Equal(t, "chat not found", event["message"])
}

func TestGatewayNewChatNotifiesOtherParticipantOnly(t *testing.T) {
	f := newGatewayFixture()
	alice := f.authedClient(t, "u1")
	bob := f.authedClient(t, "u2")

	chat := models.Chat{ID: "c1", User1ID: "u1", User2ID: "u2"}
	f.chats.On("GetChat", mock.Anything, "c1").Return(chat, nil).Once()
	f.users.On("GetUserByID", mock.Anything, "u1").Return(models.User{ID: "u1", Username: "alice"}, nil).Once()
	f.users.On("GetUserByID", mock.Anything, "u2").Return(models.User{ID: "u2", Username: "bob"}, nil).Once()

	f.gateway.dispatch(context.Background(), alice, []byte(`{"type":"new_chat","chatId":"c1"}`))

	event := receiveEvent(t, bob)
	assert.Equal(t, "new_chat", event["type"])
	assert.Equal(t, "c1", event["chatId"])
	assert.ElementsMatch(t, []any{"alice", "bob"}, event["participants"])
	assert.Nil(t, event["lastMessage"])
	assert.Empty(t, alice.send, "the caller gets no copy of the notice")
}

func TestGatewayMalformedPayloadOnlyAnswersOriginator(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "u1")
	peer := f.authedClient(t, "u2")

	f.gateway.dispatch(context.Background(), client, []byte(`not json at all`))
	event := receiveEvent(t, client)
	assert.Equal(t, "error", event["type"])

	f.gateway.dispatch(context.Background(), client, []byte(`{"type":"made_up"}`))
	event = receiveEvent(t, client)
	assert.Equal(t, "error", event["type"])
	assert.Equal(t, "unknown event type", event["message"])

	assert.Empty(t, peer.send)
}

// Drives the full upgrade path over a real socket: the connection
// outlives the HTTP handler, so store calls made from later events must
// not run on the already-canceled upgrade request context.
func TestGatewayLiveEventsOutliveUpgradeRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newGatewayFixture()
	router := gin.New()
	router.GET("/ws", f.gateway.Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	ctxErrs := make(chan error, 2)
	chat := models.Chat{ID: "c1", User1ID: "u1", User2ID: "u2"}
	f.chats.On("GetChat", mock.Anything, "c1").
		Run(func(args mock.Arguments) {
			ctxErrs <- args.Get(0).(context.Context).Err()
		}).
		Return(chat, nil).Once()

	view := models.MessageView{MessageID: "m1", ChatID: "c1", Sender: "alice", Text: "hi"}
	f.sender.On("Send", mock.Anything, "u1", "c1", "hi").
		Run(func(args mock.Arguments) {
			ctxErrs <- args.Get(0).(context.Context).Err()
		}).
		Return(view, nil).Once()

	token, err := f.tokens.Issue("u1")
	require.NoError(t, err)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event map[string]any
		require.NoError(t, conn.ReadJSON(&event))
		return event
	}
	nextCtxErr := func() error {
		t.Helper()
		select {
		case err := <-ctxErrs:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("store was never called")
			return nil
		}
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "connect"}))
	require.Equal(t, "connected", readEvent()["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_chat", "chatId": "c1"}))
	require.Equal(t, "chat_joined", readEvent()["type"])
	require.NoError(t, nextCtxErr(), "join_chat hit the store on a canceled context")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "send_message", "chatId": "c1", "text": "hi"}))
	require.NoError(t, nextCtxErr(), "send_message hit the store on a canceled context")

	f.chats.AssertExpectations(t)
	f.sender.AssertExpectations(t)
}

func TestWSEventLabelCapsUnknownTypes(t *testing.T) {
	for _, known := range []string{"connect", "join_chat", "send_message", "new_chat"} {
		assert.Equal(t, known, wsEventLabel(known))
	}
	assert.Equal(t, "unknown", wsEventLabel("made_up"))
	assert.Equal(t, "unknown", wsEventLabel(""))
	assert.Equal(t, "unknown", wsEventLabel("connect2"))
}

func TestGatewayPanicInHandlerIsContained(t *testing.T) {
	f := newGatewayFixture()
	client := f.authedClient(t, "u1")

	// an unset expectation makes the testify mock panic
	require.NotPanics(t, func() {
		f.gateway.dispatch(context.Background(), client, []byte(`{"type":"send_message","chatId":"c1","text":"hi"}`))
	})
	event := receiveEvent(t, client)
	assert.Equal(t, "error", event["type"])
}
