package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/config"
	"github.com/qs3c/quota_relay/internal/api/middleware"
	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/pkg/clock"
	"github.com/qs3c/quota_relay/internal/pkg/response"
	"github.com/qs3c/quota_relay/internal/repository"
	"github.com/qs3c/quota_relay/internal/service"
	"github.com/qs3c/quota_relay/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminID int64 = 1000

var ist = time.FixedZone("IST", 5*3600+30*60)

type testContext struct {
	DB     *gorm.DB
	Clock  *clock.Fake
	Config *config.Config

	Events *EventHandler
	Quota  *QuotaHandler
	Admin  *AdminHandler
}

func setupHandlers(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	rdb, _ := testutil.SetupTestRedis(t)

	cfg := &config.Config{
		Bot:     config.BotConfig{AdminUserID: testAdminID, AdminUsername: "relay_admin"},
		Quota:   config.QuotaConfig{DailyLimit: 1, NewUserLimit: 5},
		Plans:   config.DefaultPlans(),
		Payment: config.PaymentConfig{RequestTTL: 72 * time.Hour},
	}
	clk := clock.NewFake(time.Date(2024, 1, 15, 10, 0, 0, 0, ist))
	log := zerolog.Nop()

	accountRepo := repository.NewAccountRepository(db)
	entitlements := service.NewEntitlementService(accountRepo, clk, log)
	quota := service.NewQuotaService(accountRepo, entitlements, clk, cfg, log)
	accounts := service.NewAccountService(accountRepo, repository.NewCommandLogRepository(db), entitlements, clk, cfg, log)
	payments := service.NewPaymentService(repository.NewPaymentRepository(rdb), entitlements, clk, cfg, log)
	router := bot.NewRouter(accounts, quota, entitlements, payments, bot.NopNotifier{}, clk, cfg, log)

	return &testContext{
		DB:     db,
		Clock:  clk,
		Config: cfg,
		Events: NewEventHandler(router),
		Quota:  NewQuotaHandler(quota, testAdminID),
		Admin:  NewAdminHandler(router, payments, accounts),
	}
}

func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// resultData 取出响应中的 bot.Result
func resultData(t *testing.T, resp response.Response) bot.Result {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var res bot.Result
	require.NoError(t, json.Unmarshal(raw, &res))
	return res
}
