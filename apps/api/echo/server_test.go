package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/learnwise/backend/apps/api/echo"
	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/advisor"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/tutor"
	"github.com/learnwise/backend/core/user"
	"github.com/learnwise/backend/services/email"
	"github.com/learnwise/backend/services/events"
	"github.com/learnwise/backend/services/logger"
	"github.com/learnwise/backend/storage/database/dbtest"
	"github.com/learnwise/backend/storage/database/sqlx"
	"github.com/learnwise/backend/storage/kvstore"
)

const strongPwd = "Sup3r-S3cret!"

type testEnv struct {
	app      *echoapi.Server
	conf     *core.Config
	usrRepo  user.Repository
	lsnRepo  lesson.Repository
	quizRepo quiz.Repository
	events   *eventsvc.MemoryPublisher
}

func setup(t *testing.T, provider ...tutor.Provider) testEnv {
	t.Helper()
	return setupWithConfig(t, core.NewTestConfig(), provider...)
}

func setupWithConfig(t *testing.T, conf *core.Config, provider ...tutor.Provider) testEnv {
	t.Helper()

	db := dbtest.PrepareDB(t)
	appLogger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	pub := eventsvc.NewMemoryPublisher()
	emailsvc.ResetSentMessages()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up DB & repos
	usrRepo := sqlxrepos.NewUserRepository(db, conf.Database.Engine)
	lsnRepo := sqlxrepos.NewLessonRepository(db, conf.Database.Engine)
	quizRepo := sqlxrepos.NewQuizRepository(db, conf.Database.Engine)
	advisorRepo := sqlxrepos.NewAdvisorRepository(db, conf.Database.Engine)

	// set up services
	usrSvc := user.NewService(db, usrRepo, emailsvc.NewConsoleServiceMock(conf), kvstore.NewMemoryStore(), conf)
	lsnSvc := lesson.NewService(db, lsnRepo, usrSvc, pub, appLogger)
	quizSvc := quiz.NewService(db, quizRepo, lsnSvc, usrSvc, pub, appLogger)

	var p tutor.Provider
	if len(provider) > 0 {
		p = provider[0]
	}

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         appLogger,
		UserSvc:        usrSvc,
		LessonSvc:      lsnSvc,
		QuizSvc:        quizSvc,
		AdvisorSvc:     advisor.NewService(advisorRepo, usrSvc, lsnSvc, conf),
		TutorSvc:       tutor.NewService(p, appLogger),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	return testEnv{
		app:      app,
		conf:     conf,
		usrRepo:  usrRepo,
		lsnRepo:  lsnRepo,
		quizRepo: quizRepo,
		events:   pub,
	}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantMsg  string
}

// apiResponse mirrors echoapi.Response with raw data.
type apiResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       json.RawMessage   `json:"data"`
	Errors     map[string]string `json:"errors"`
	Pagination *core.Pagination  `json:"pagination"`
}

func newAuthRequest(method, path, token string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 && data[0] != nil {
		_ = json.NewEncoder(&body).Encode(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (env testEnv) do(t *testing.T, method, path, token string, data ...interface{}) (int, apiResponse) {
	t.Helper()

	req, rec := newAuthRequest(method, path, token, data...)
	env.app.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func (env testEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			wantCode := tt.wantCode
			if wantCode == 0 {
				wantCode = http.StatusOK
			}
			code, resp := env.do(t, method, tt.path, tt.token, tt.body)
			assert.Equal(t, wantCode, code, resp.Message)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Message)
			}
		})
	}
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func decode(t *testing.T, resp apiResponse, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, dest), string(resp.Data))
}

func TestServer_home(t *testing.T) {
	env := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	env.app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to LearnWise API!", rec.Body.String())
}

func TestServer_notFound(t *testing.T) {
	env := setup(t)

	code, resp := env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
}

func TestServer_metrics(t *testing.T) {
	env := setup(t)

	code, _ := env.do(t, http.MethodGet, "/api/lessons", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, code)

	req, rec := newRequest(http.MethodGet, "/metrics")
	env.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `learnwise_http_requests_total{code="200",method="GET",route="/api/lessons"} 1`)
	assert.Contains(t, body, `learnwise_http_requests_total{code="401",method="GET",route="/api/auth/me"} 1`)
	assert.Contains(t, body, "learnwise_http_request_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_auth(t *testing.T) {
	env := setup(t)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)

	parentToken, err := echoapi.GenerateToken(env.conf, echoapi.GetParentClaims(env.conf, student))
	require.NoError(t, err)
	otherConf := core.NewTestConfig()
	otherConf.SecretKey = "another-secret"
	forged := getToken(t, otherConf, teacher)

	env.run(t, []httpTest{
		{name: "missing token", path: "/api/auth/me", wantCode: http.StatusUnauthorized, wantMsg: "missing or malformed jwt"},
		{name: "forged token", path: "/api/auth/me", token: forged, wantCode: http.StatusUnauthorized},
		{name: "garbage token", path: "/api/auth/me", token: "lol", wantCode: http.StatusUnauthorized},
		{
			name: "parent token on user route", path: "/api/auth/me", token: parentToken,
			wantCode: http.StatusUnauthorized, wantMsg: "token not valid for this resource",
		},
		{
			name: "wrong role", path: "/api/users", token: getToken(t, env.conf, student),
			wantCode: http.StatusForbidden, wantMsg: "permission denied",
		},
		{name: "ok", path: "/api/auth/me", token: getToken(t, env.conf, teacher)},
		{name: "trailing slash", path: "/api/auth/me/", token: getToken(t, env.conf, teacher)},
	})
}
