package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/user"
	"github.com/learnwise/backend/storage/database/dbtest"
)

func Test_quizApi_authoring(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	other := dbtest.CreateUser(t, env.usrRepo, "Other", "other@test.io", strongPwd, user.RoleTeacher, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	lsn := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Algebra", "Maths", core.Beginner, true)
	teacherToken := getToken(t, env.conf, teacher)

	newQuiz := map[string]interface{}{
		"lesson_id":      lsn.ID,
		"question":       "2 + 2 = ?",
		"options":        []string{"3", "4", "5"},
		"correct_answer": 1,
		"explanation":    "Count them.",
		"difficulty":     "easy",
		"hint":           "Use your fingers.",
	}
	badAnswer := map[string]interface{}{
		"lesson_id": lsn.ID, "question": "?", "options": []string{"a", "b"}, "correct_answer": 2,
	}
	env.run(t, []httpTest{
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/quizzes",
			token: getToken(t, env.conf, student), body: newQuiz, wantCode: http.StatusForbidden,
		},
		{
			name: "other teacher cannot create", method: http.MethodPost, path: "/api/quizzes",
			token: getToken(t, env.conf, other), body: newQuiz, wantCode: http.StatusForbidden,
		},
		{
			name: "answer out of range", method: http.MethodPost, path: "/api/quizzes",
			token: teacherToken, body: badAnswer, wantCode: http.StatusBadRequest,
		},
		{
			name: "missing options", method: http.MethodPost, path: "/api/quizzes", token: teacherToken,
			body: map[string]interface{}{"lesson_id": lsn.ID, "question": "?", "correct_answer": 0}, wantCode: http.StatusBadRequest,
		},
	})

	code, resp := env.do(t, http.MethodPost, "/api/quizzes", teacherToken, newQuiz)
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var qz quiz.Quiz
	decode(t, resp, &qz)
	assert.Equal(t, core.Beginner, qz.Difficulty, "unknown difficulties default to beginner")
	assert.Equal(t, 1, qz.CorrectAnswer)
	assert.Equal(t, "Use your fingers.", qz.Hint.String)

	path := "/api/quizzes/" + qz.ID
	env.run(t, []httpTest{
		{
			name: "other teacher cannot update", method: http.MethodPut, path: path,
			token: getToken(t, env.conf, other), body: map[string]int{"points": 20}, wantCode: http.StatusForbidden,
		},
		{
			name: "answer out of new options", method: http.MethodPut, path: path, token: teacherToken,
			body: map[string]interface{}{"options": []string{"4"}}, wantCode: http.StatusBadRequest,
		},
		{name: "update", method: http.MethodPut, path: path, token: teacherToken, body: map[string]int{"points": 20}, wantMsg: "Quiz updated"},
	})

	// students do not see the answer
	code, resp = env.do(t, http.MethodGet, "/api/quizzes/lesson/"+lsn.ID, getToken(t, env.conf, student))
	require.Equal(t, http.StatusOK, code)
	var public []map[string]interface{}
	decode(t, resp, &public)
	require.Len(t, public, 1)
	assert.NotContains(t, public[0], "correct_answer")
	assert.NotContains(t, public[0], "explanation")
	assert.Equal(t, 20.0, public[0]["points"])

	code, resp = env.do(t, http.MethodGet, path, teacherToken)
	require.Equal(t, http.StatusOK, code)
	var full map[string]interface{}
	decode(t, resp, &full)
	assert.Equal(t, 1.0, full["correct_answer"])

	env.run(t, []httpTest{
		{name: "other teacher cannot delete", method: http.MethodDelete, path: path, token: getToken(t, env.conf, other), wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: path, token: teacherToken, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: teacherToken, wantCode: http.StatusNotFound},
		{name: "unknown lesson", path: "/api/quizzes/lesson/nope", token: teacherToken, wantCode: http.StatusNotFound},
	})
}

func Test_quizApi_attempts(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	lsn := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Algebra", "Maths", core.Beginner, true)
	qz := dbtest.CreateQuiz(t, env.quizRepo, lsn.ID, core.Beginner, 10, 2)
	token := getToken(t, env.conf, student)
	path := "/api/quizzes/" + qz.ID + "/attempt"

	env.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: path, body: map[string]int{"answer": 2}, wantCode: http.StatusUnauthorized},
		{name: "missing answer", method: http.MethodPost, path: path, token: token, body: map[string]int{}, wantCode: http.StatusBadRequest},
		{
			name: "unknown quiz", method: http.MethodPost, path: "/api/quizzes/nope/attempt", token: token,
			body: map[string]int{"answer": 2}, wantCode: http.StatusNotFound,
		},
	})

	code, resp := env.do(t, http.MethodPost, path, token, map[string]int{"answer": 0, "time_taken_seconds": 12})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var res quiz.AttemptResult
	decode(t, resp, &res)
	assert.False(t, res.IsCorrect)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 2, res.CorrectAnswer)
	assert.Equal(t, "C", res.CorrectOption)
	assert.Equal(t, "Not quite. The correct answer is: C. Because.", res.Feedback)

	code, resp = env.do(t, http.MethodPost, path, token, map[string]int{"answer": 2})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	decode(t, resp, &res)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, 10, res.Score)

	assert.Len(t, env.events.Events(core.EventAttemptRecorded), 2)

	code, resp = env.do(t, http.MethodGet, "/api/auth/me", token)
	require.Equal(t, http.StatusOK, code)
	var me user.User
	decode(t, resp, &me)
	require.NotNil(t, me.Profile)
	assert.Equal(t, 2, me.Profile.TotalQuizzesTaken)
	assert.Equal(t, 50.0, me.Profile.AverageScore)
}

func Test_quizApi_sessions(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	peer := dbtest.CreateUser(t, env.usrRepo, "Peer", "peer@test.io", strongPwd, user.RoleStudent, true)
	lsn := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Algebra", "Maths", core.Beginner, true)
	empty := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Empty", "Maths", core.Beginner, true)
	q1 := dbtest.CreateQuiz(t, env.quizRepo, lsn.ID, core.Beginner, 10, 0)
	q2 := dbtest.CreateQuiz(t, env.quizRepo, lsn.ID, core.Beginner, 10, 1)
	token := getToken(t, env.conf, student)

	env.run(t, []httpTest{
		{name: "missing lesson", method: http.MethodPost, path: "/api/quizzes/session/start", token: token, body: map[string]string{}, wantCode: http.StatusBadRequest},
		{
			name: "unknown lesson", method: http.MethodPost, path: "/api/quizzes/session/start", token: token,
			body: map[string]string{"lesson_id": "nope"}, wantCode: http.StatusNotFound,
		},
		{
			name: "lesson without quizzes", method: http.MethodPost, path: "/api/quizzes/session/start", token: token,
			body: map[string]string{"lesson_id": empty.ID}, wantCode: http.StatusBadRequest, wantMsg: quiz.ErrNoQuizzes.Error(),
		},
	})

	code, resp := env.do(t, http.MethodPost, "/api/quizzes/session/start", token, map[string]string{"lesson_id": lsn.ID})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var s quiz.Session
	decode(t, resp, &s)
	assert.Equal(t, 2, s.TotalQuestions)
	assert.False(t, s.CompletedAt.Valid)

	for _, answer := range []struct {
		qz     quiz.Quiz
		answer int
	}{{q1, 0}, {q2, 0}} {
		code, _ = env.do(t, http.MethodPost, "/api/quizzes/"+answer.qz.ID+"/attempt", token,
			map[string]int{"answer": answer.answer, "time_taken_seconds": 5})
		require.Equal(t, http.StatusCreated, code)
	}

	completePath := "/api/quizzes/session/" + s.ID + "/complete"
	code, _ = env.do(t, http.MethodPost, completePath, getToken(t, env.conf, peer))
	assert.Equal(t, http.StatusForbidden, code, "sessions belong to their student")

	code, resp = env.do(t, http.MethodPost, completePath, token)
	require.Equal(t, http.StatusOK, code, resp.Message)
	decode(t, resp, &s)
	assert.Equal(t, 1, s.CorrectAnswers)
	assert.Equal(t, 10, s.TotalScore)
	assert.Equal(t, 50.0, s.Percentage)
	assert.Equal(t, 10, s.TimeTakenSeconds)
	assert.True(t, s.CompletedAt.Valid)

	code, resp = env.do(t, http.MethodPost, completePath, token)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, quiz.ErrSessionDone.Error(), resp.Message)

	code, _ = env.do(t, http.MethodPost, "/api/quizzes/session/nope/complete", token)
	assert.Equal(t, http.StatusNotFound, code)
}

func Test_quizApi_syncOffline(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	lsn := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Algebra", "Maths", core.Beginner, true)
	qz := dbtest.CreateQuiz(t, env.quizRepo, lsn.ID, core.Beginner, 10, 3)
	token := getToken(t, env.conf, student)

	at := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	batch := map[string]interface{}{
		"attempts": []map[string]interface{}{
			{"quiz_id": qz.ID, "user_answer": 3, "time_taken_seconds": 9, "timestamp": at},
			{"quiz_id": qz.ID, "user_answer": 1, "time_taken_seconds": 4, "timestamp": at.Add(time.Minute)},
			{"quiz_id": "nope", "user_answer": 1, "timestamp": at},
		},
	}

	env.run(t, []httpTest{
		{
			name: "empty batch", method: http.MethodPost, path: "/api/quizzes/sync/offline", token: token,
			body: map[string]interface{}{"attempts": []interface{}{}}, wantCode: http.StatusBadRequest,
		},
		{
			name: "missing answer", method: http.MethodPost, path: "/api/quizzes/sync/offline", token: token,
			body:     map[string]interface{}{"attempts": []map[string]interface{}{{"quiz_id": qz.ID, "timestamp": at}}},
			wantCode: http.StatusBadRequest,
		},
	})

	code, resp := env.do(t, http.MethodPost, "/api/quizzes/sync/offline", token, batch)
	require.Equal(t, http.StatusOK, code, resp.Message)
	var res quiz.SyncResult
	decode(t, resp, &res)
	assert.Equal(t, 2, res.SyncedCount)
	assert.Equal(t, []string{"Quiz nope not found"}, res.Errors)

	// replaying the batch is a no-op
	code, resp = env.do(t, http.MethodPost, "/api/quizzes/sync/offline", token, batch)
	require.Equal(t, http.StatusOK, code, resp.Message)
	decode(t, resp, &res)
	assert.Equal(t, 0, res.SyncedCount)
}

func Test_quizApi_draftLessons(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	draft := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Draft", "Maths", core.Beginner, false)
	qz := dbtest.CreateQuiz(t, env.quizRepo, draft.ID, core.Beginner, 10, 0)
	studentToken := getToken(t, env.conf, student)
	teacherToken := getToken(t, env.conf, teacher)

	env.run(t, []httpTest{
		{name: "list hidden", path: "/api/quizzes/lesson/" + draft.ID, token: studentToken, wantCode: http.StatusNotFound},
		{name: "retrieve hidden", path: "/api/quizzes/" + qz.ID, token: studentToken, wantCode: http.StatusNotFound},
		{
			name: "attempt hidden", method: http.MethodPost, path: "/api/quizzes/" + qz.ID + "/attempt", token: studentToken,
			body: map[string]int{"answer": 0}, wantCode: http.StatusNotFound,
		},
		{
			name: "session hidden", method: http.MethodPost, path: "/api/quizzes/session/start", token: studentToken,
			body: map[string]string{"lesson_id": draft.ID}, wantCode: http.StatusNotFound,
		},
		{name: "author lists", path: "/api/quizzes/lesson/" + draft.ID, token: teacherToken},
		{name: "author retrieves", path: "/api/quizzes/" + qz.ID, token: teacherToken},
	})

	attempts, err := env.quizRepo.QueryAttempts(context.Background(), quiz.AttemptFilter{UserID: student.ID})
	require.NoError(t, err)
	assert.Empty(t, attempts)
}
