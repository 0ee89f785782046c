package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shopsync/internal/middleware"
	"shopsync/internal/model"
	"shopsync/internal/service/access"
	"shopsync/internal/shopify"
	"shopsync/pkg/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := utils.RegisterValidators(); err != nil {
		panic(err)
	}
	m.Run()
}

// MockSyncService mock inventory sync service
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) SyncFromSource(ctx context.Context) (*model.SKUQuantitiesResponse, *model.ReconciliationReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*model.SKUQuantitiesResponse), args.Get(1).(*model.ReconciliationReport), args.Error(2)
}

// MockDispatcher mock webhook dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event model.OrderWebhookEvent) error {
	return m.Called(ctx, event).Error(0)
}

// MockRegistrar mock webhook registrar
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) RegisterOrderWebhooks(ctx context.Context, callbackURL string) ([]shopify.WebhookSubscription, error) {
	args := m.Called(ctx, callbackURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shopify.WebhookSubscription), args.Error(1)
}

// MockAccessService mock access service
type MockAccessService struct {
	mock.Mock
}

func (m *MockAccessService) ValidateToken(ctx context.Context, token, shopDomain string) (*model.ShopAccess, error) {
	args := m.Called(ctx, token, shopDomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShopAccess), args.Error(1)
}

func (m *MockAccessService) CheckAccess(ctx context.Context, shopDomain string) (*model.ShopAccess, bool, error) {
	args := m.Called(ctx, shopDomain)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.ShopAccess), args.Bool(1), args.Error(2)
}

type webhookCounts map[string]int

func (w webhookCounts) RecordWebhook(topic, result string) { w[topic+":"+result]++ }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSKUHandler_GetQuantities(t *testing.T) {
	t.Run("returns snapshot and report", func(t *testing.T) {
		svc := new(MockSyncService)
		snapshot := &model.SKUQuantitiesResponse{
			Success: true,
			Data: []model.InventoryRecord{{
				CompanyName: "Acme",
				SKUs:        []model.SKUQuantity{{SKU: "X1", QuantityOnHand: 50}},
			}},
		}
		report := model.NewReconciliationReport()
		report.Processed, report.Updated = 1, 1
		svc.On("SyncFromSource", mock.Anything).Return(snapshot, report, nil)

		router := gin.New()
		router.GET("/api/skus/quantities", NewSKUHandler(svc).GetQuantities)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/skus/quantities", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		data := body["data"].([]interface{})
		assert.Equal(t, "Acme", data[0].(map[string]interface{})["company_name"])
		rep := body["report"].(map[string]interface{})
		assert.Equal(t, float64(1), rep["updated"])
		assert.Equal(t, []interface{}{}, rep["failures"])
	})

	t.Run("external api unavailable", func(t *testing.T) {
		svc := new(MockSyncService)
		svc.On("SyncFromSource", mock.Anything).Return(nil, nil, errors.New("external SKU_QUANTITIES returned 503"))

		router := gin.New()
		router.GET("/api/skus/quantities", NewSKUHandler(svc).GetQuantities)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/skus/quantities", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "External API is unavailable", body["message"])
		assert.Equal(t, "external SKU_QUANTITIES returned 503", body["error"])
	})
}

func webhookReq(topic, body string) *http.Request {
	req := httptest.NewRequest("POST", "/api/webhooks", strings.NewReader(body))
	req.Header.Set(middleware.HeaderShopifyTopic, topic)
	req.Header.Set(middleware.HeaderShopifyShopDomain, "demo.myshopify.com")
	req.Header.Set(middleware.HeaderShopifyWebhookID, "wh-1")
	return req
}

func newWebhookRouter(h *WebhookHandler) *gin.Engine {
	router := gin.New()
	router.POST("/api/webhooks", middleware.VerifyWebhook("secret", false), h.Receive)
	router.POST("/api/webhooks/register", h.Register)
	router.GET("/api/webhooks/test", h.Test)
	return router
}

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("order topic is dispatched", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(e model.OrderWebhookEvent) bool {
			return e.Topic == model.TopicOrdersCreate &&
				e.ShopDomain == "demo.myshopify.com" &&
				e.WebhookID == "wh-1" &&
				string(e.RawOrder) == `{"id":1}`
		})).Return(nil).Once()
		counts := webhookCounts{}

		w := httptest.NewRecorder()
		newWebhookRouter(NewWebhookHandler(dispatcher, nil, "", counts)).ServeHTTP(w, webhookReq("orders/create", `{"id":1}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, counts["ORDERS_CREATE:queued"])
		dispatcher.AssertExpectations(t)
	})

	t.Run("full queue still acks", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("queue is full"))
		counts := webhookCounts{}

		w := httptest.NewRecorder()
		newWebhookRouter(NewWebhookHandler(dispatcher, nil, "", counts)).ServeHTTP(w, webhookReq("orders/updated", `{"id":1}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, counts["ORDERS_UPDATED:dropped"])
	})

	t.Run("privacy topic is acknowledged", func(t *testing.T) {
		dispatcher := new(MockDispatcher)
		counts := webhookCounts{}

		w := httptest.NewRecorder()
		newWebhookRouter(NewWebhookHandler(dispatcher, nil, "", counts)).ServeHTTP(w, webhookReq("customers/redact", `{}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, counts["CUSTOMERS_REDACT:privacy"])
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("other topic is ignored", func(t *testing.T) {
		dispatcher := new(MockDispatcher)

		w := httptest.NewRecorder()
		newWebhookRouter(NewWebhookHandler(dispatcher, nil, "", nil)).ServeHTTP(w, webhookReq("app/uninstalled", `{}`))

		assert.Equal(t, http.StatusOK, w.Code)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})
}

func TestWebhookHandler_Register(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		registrar := new(MockRegistrar)
		registrar.On("RegisterOrderWebhooks", mock.Anything, "https://app.example.com/api/webhooks").
			Return([]shopify.WebhookSubscription{{ID: "gid://shopify/WebhookSubscription/1", Topic: "ORDERS_CREATE"}}, nil)

		w := httptest.NewRecorder()
		h := NewWebhookHandler(nil, registrar, "https://app.example.com/api/webhooks", nil)
		newWebhookRouter(h).ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/register", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Webhooks registered successfully", body["message"])
		assert.Len(t, body["result"], 1)
	})

	t.Run("failure", func(t *testing.T) {
		registrar := new(MockRegistrar)
		registrar.On("RegisterOrderWebhooks", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

		w := httptest.NewRecorder()
		newWebhookRouter(NewWebhookHandler(nil, registrar, "https://app.example.com/api/webhooks", nil)).
			ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/register", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Failed to register webhooks", body["message"])
		assert.Equal(t, "access denied", body["error"])
	})
}

func TestWebhookHandler_Test(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "", nil)
	h.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	w := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(w, httptest.NewRequest("GET", "/api/webhooks/test?x=1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Webhook endpoint is working!", body["message"])
	assert.Equal(t, "2024-01-02T03:04:05.000Z", body["timestamp"])
	assert.Equal(t, "/api/webhooks/test?x=1", body["url"])
}

func newAccessRouter(svc access.Service) *gin.Engine {
	h := NewAccessHandler(svc)
	router := gin.New()
	router.POST("/api/token/validate", h.ValidateToken)
	router.GET("/api/token/check-access", h.CheckAccess)
	return router
}

func TestAccessHandler_ValidateToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockAccessService)
		validated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		svc.On("ValidateToken", mock.Anything, "tok", "demo.myshopify.com").
			Return(&model.ShopAccess{ShopDomain: "demo.myshopify.com", ValidatedAt: &validated, TokenHash: "hash"}, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/token/validate", strings.NewReader(`{"token":"tok","shopDomain":"demo.myshopify.com"}`))
		req.Header.Set("Content-Type", "application/json")
		newAccessRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Token validated successfully. You now have access to the app!", body["message"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "demo.myshopify.com", data["shopDomain"])
		assert.Equal(t, "2024-01-01T00:00:00Z", data["validatedAt"])
		assert.NotContains(t, w.Body.String(), "hash")
	})

	t.Run("rejected", func(t *testing.T) {
		svc := new(MockAccessService)
		svc.On("ValidateToken", mock.Anything, "used", "demo.myshopify.com").
			Return(nil, utils.NewError(utils.CodeInvalidParam, "Token already used"))

		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/token/validate", strings.NewReader(`{"token":"used","shopDomain":"demo.myshopify.com"}`))
		newAccessRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Token already used", body["message"])
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockAccessService)

		w := httptest.NewRecorder()
		newAccessRouter(svc).ServeHTTP(w, httptest.NewRequest("POST", "/api/token/validate", strings.NewReader(`{`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, access.MsgFieldsRequired, decode(t, w)["message"])
		svc.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("blank token", func(t *testing.T) {
		svc := new(MockAccessService)

		w := httptest.NewRecorder()
		body := strings.NewReader(`{"token":"  ","shopDomain":"demo.myshopify.com"}`)
		newAccessRouter(svc).ServeHTTP(w, httptest.NewRequest("POST", "/api/token/validate", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, access.MsgFieldsRequired, decode(t, w)["message"])
		svc.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAccessHandler_CheckAccess(t *testing.T) {
	t.Run("no access", func(t *testing.T) {
		svc := new(MockAccessService)
		svc.On("CheckAccess", mock.Anything, "demo.myshopify.com").Return(nil, false, nil)

		w := httptest.NewRecorder()
		newAccessRouter(svc).ServeHTTP(w, httptest.NewRequest("GET", "/api/token/check-access?shopDomain=demo.myshopify.com", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["hasAccess"])
		assert.Equal(t, "Token validation required", body["message"])
	})

	t.Run("has access", func(t *testing.T) {
		svc := new(MockAccessService)
		validated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		svc.On("CheckAccess", mock.Anything, "demo.myshopify.com").
			Return(&model.ShopAccess{ShopDomain: "demo.myshopify.com", IsTokenValidated: true, ValidatedAt: &validated}, true, nil)

		w := httptest.NewRecorder()
		newAccessRouter(svc).ServeHTTP(w, httptest.NewRequest("GET", "/api/token/check-access?shopDomain=demo.myshopify.com", nil))

		body := decode(t, w)
		assert.Equal(t, true, body["hasAccess"])
		assert.Equal(t, "demo.myshopify.com", body["data"].(map[string]interface{})["shopDomain"])
	})

	t.Run("missing domain", func(t *testing.T) {
		svc := new(MockAccessService)
		svc.On("CheckAccess", mock.Anything, "").Return(nil, false, utils.NewError(utils.CodeInvalidParam, access.MsgDomainRequired))

		w := httptest.NewRecorder()
		newAccessRouter(svc).ServeHTTP(w, httptest.NewRequest("GET", "/api/token/check-access", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, access.MsgDomainRequired, decode(t, w)["message"])
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler("1.2.3")
		h.Register("queue", func(context.Context) error { return nil })

		router := gin.New()
		router.GET("/health", h.Health)
		router.GET("/ping", h.Ping)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "1.2.3", body["version"])

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
		assert.Equal(t, "pong", decode(t, w)["message"])
	})

	t.Run("unhealthy dependency", func(t *testing.T) {
		h := NewHealthHandler("1.2.3")
		h.Register("queue", func(context.Context) error { return nil })
		h.Register("redis", func(context.Context) error { return errors.New("connection refused") })

		router := gin.New()
		router.GET("/health", h.Health)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		assert.Equal(t, "error", body["status"])
		redis := body["services"].(map[string]interface{})["redis"].(map[string]interface{})
		assert.Equal(t, false, redis["healthy"])
	})
}
