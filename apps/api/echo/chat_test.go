package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnwise/backend/core/tutor"
	"github.com/learnwise/backend/core/user"
	"github.com/learnwise/backend/storage/database/dbtest"
)

type fakeProvider struct {
	reply string
}

func (p fakeProvider) Generate(_ context.Context, _, prompt string) (string, error) {
	if p.reply == "echo" {
		return "You asked: " + strings.TrimPrefix(prompt, "Student Question: "), nil
	}
	return p.reply, nil
}

func Test_chatApi_unconfigured(t *testing.T) {
	env := setup(t)
	usr := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)

	code, resp := env.do(t, http.MethodGet, "/api/chat/status", "")
	require.Equal(t, http.StatusOK, code)
	var status tutor.Status
	decode(t, resp, &status)
	assert.False(t, status.Configured)
	assert.Equal(t, "unavailable", status.Status)

	env.run(t, []httpTest{
		{name: "needs a token", method: http.MethodPost, path: "/api/chat", body: map[string]string{"message": "hi"}, wantCode: http.StatusUnauthorized},
		{
			name: "unavailable", method: http.MethodPost, path: "/api/chat", token: getToken(t, env.conf, usr),
			body: map[string]string{"message": "hi"}, wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "empty message", method: http.MethodPost, path: "/api/chat", token: getToken(t, env.conf, usr),
			body: map[string]string{"message": "  "}, wantCode: http.StatusBadRequest,
		},
	})
}

func Test_chatApi(t *testing.T) {
	env := setup(t, fakeProvider{reply: "echo"})
	usr := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	token := getToken(t, env.conf, usr)

	code, resp := env.do(t, http.MethodGet, "/api/chat/status", "")
	require.Equal(t, http.StatusOK, code)
	var status tutor.Status
	decode(t, resp, &status)
	assert.True(t, status.Configured)

	code, resp = env.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": " What is a loop? "})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var reply tutor.Reply
	decode(t, resp, &reply)
	assert.Equal(t, "You asked: What is a loop?", reply.Reply)
	assert.False(t, reply.Timestamp.IsZero())

	code, _ = env.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": strings.Repeat("a", 4001)})
	assert.Equal(t, http.StatusBadRequest, code)
}

func Test_chatApi_emptyReply(t *testing.T) {
	env := setup(t, fakeProvider{reply: " "})
	usr := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)

	code, _ := env.do(t, http.MethodPost, "/api/chat", getToken(t, env.conf, usr), map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, code)
}
