package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leandro-lugaresi/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonauth "editmarket/server/common/auth"
	"editmarket/server/realtime/domain"
	realtimeservice "editmarket/server/realtime/service"
)

type fakeOrderAccess struct {
	allowed map[string]bool
}

func (f *fakeOrderAccess) HasAccess(_ context.Context, orderID, userID string) (bool, error) {
	return f.allowed[orderID+"/"+userID], nil
}

type fakeMessages struct {
	unread   map[string]int
	messages map[string][]domain.Message
}

func (f *fakeMessages) ListMessages(_ context.Context, orderID string, _ int) ([]domain.Message, error) {
	return f.messages[orderID], nil
}

func (f *fakeMessages) CountUnread(_ context.Context, orderID, userID string) (int, error) {
	return f.unread[orderID+"/"+userID], nil
}

func handlerFixture(t *testing.T, access *fakeOrderAccess, messages *fakeMessages) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := commonauth.NewService("test-secret", 60)
	token, err := auth.GenerateToken("u1", "Ana", "client")
	require.NoError(t, err)

	svc := realtimeservice.NewService(hub.New(), realtimeservice.Deps{Orders: access})
	t.Cleanup(svc.Close)

	h := NewHandler(svc, auth, HandlerDeps{Messages: messages})
	r := gin.New()
	h.RegisterRoutes(r)
	return r, token
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOrderUnreadCount(t *testing.T) {
	access := &fakeOrderAccess{allowed: map[string]bool{"order-1/u1": true}}
	messages := &fakeMessages{unread: map[string]int{"order-1/u1": 4}}
	r, token := handlerFixture(t, access, messages)

	w := doRequest(r, http.MethodGet, "/api/v1/orders/order-1/unread", token)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		OrderID string `json:"order_id"`
		Unread  int    `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "order-1", body.OrderID)
	assert.Equal(t, 4, body.Unread)
}

func TestOrderUnreadCountForbidden(t *testing.T) {
	r, token := handlerFixture(t, &fakeOrderAccess{}, &fakeMessages{})

	w := doRequest(r, http.MethodGet, "/api/v1/orders/order-1/unread", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOrderUnreadCountRequiresToken(t *testing.T) {
	r, _ := handlerFixture(t, &fakeOrderAccess{}, &fakeMessages{})

	w := doRequest(r, http.MethodGet, "/api/v1/orders/order-1/unread", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListOrderMessagesAuthorized(t *testing.T) {
	access := &fakeOrderAccess{allowed: map[string]bool{"order-1/u1": true}}
	messages := &fakeMessages{messages: map[string][]domain.Message{
		"order-1": {{ID: "m1", OrderID: "order-1", Body: "hello"}},
	}}
	r, token := handlerFixture(t, access, messages)

	w := doRequest(r, http.MethodGet, "/api/v1/orders/order-1/messages", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hello"`)
}
