package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/learnwise/backend/apps/api/echo"
	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/user"
	"github.com/learnwise/backend/storage/database/dbtest"
)

func Test_lessonApi_query(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	algebra := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Algebra", "Maths", core.Beginner, true)
	dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Calculus", "Maths", core.Advanced, true)
	dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Loops", "Programming", core.Beginner, true)
	dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Draft", "Maths", core.Beginner, false)

	tests := []struct {
		name      string
		path      string
		wantTotal int
	}{
		{name: "published only", path: "/api/lessons", wantTotal: 3},
		{name: "published=false is ignored", path: "/api/lessons?published=false", wantTotal: 3},
		{name: "subject", path: "/api/lessons?subject=Maths", wantTotal: 2},
		{name: "difficulty", path: "/api/lessons?difficulty=beginner", wantTotal: 2},
		{name: "search", path: "/api/lessons?search=alg", wantTotal: 1},
		{name: "unknown subject", path: "/api/lessons?subject=History", wantTotal: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := env.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, code)
			var lessons []lesson.Lesson
			decode(t, resp, &lessons)
			assert.Len(t, lessons, tt.wantTotal)
			require.NotNil(t, resp.Pagination)
			assert.Equal(t, tt.wantTotal, resp.Pagination.Total)
		})
	}

	t.Run("pagination", func(t *testing.T) {
		code, resp := env.do(t, http.MethodGet, "/api/lessons?page=2&per_page=2", "")
		require.Equal(t, http.StatusOK, code)
		var lessons []lesson.Lesson
		decode(t, resp, &lessons)
		assert.Len(t, lessons, 1)
		assert.Equal(t, core.Pagination{Page: 2, PerPage: 2, Total: 3, TotalPages: 2}, *resp.Pagination)
	})

	t.Run("subjects", func(t *testing.T) {
		code, resp := env.do(t, http.MethodGet, "/api/lessons/subjects", "")
		require.Equal(t, http.StatusOK, code)
		var subjects []string
		decode(t, resp, &subjects)
		assert.Contains(t, subjects, "Maths")
		assert.Contains(t, subjects, "Programming")
	})

	t.Run("mine", func(t *testing.T) {
		code, resp := env.do(t, http.MethodGet, "/api/lessons/mine", getToken(t, env.conf, teacher))
		require.Equal(t, http.StatusOK, code)
		var lessons []lesson.Lesson
		decode(t, resp, &lessons)
		assert.Len(t, lessons, 4, "drafts included")
	})

	t.Run("retrieve", func(t *testing.T) {
		code, resp := env.do(t, http.MethodGet, "/api/lessons/"+algebra.ID, getToken(t, env.conf, teacher))
		require.Equal(t, http.StatusOK, code)
		var detail echoapi.LessonDetail
		decode(t, resp, &detail)
		assert.Equal(t, algebra.ID, detail.ID)
		assert.Equal(t, 1, detail.ViewsCount)
		assert.Nil(t, detail.Progress)
	})
}

func Test_lessonApi_crud(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	other := dbtest.CreateUser(t, env.usrRepo, "Other", "other@test.io", strongPwd, user.RoleTeacher, true)
	admin := dbtest.CreateUser(t, env.usrRepo, "Admin", "admin@test.io", strongPwd, user.RoleAdmin, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	teacherToken := getToken(t, env.conf, teacher)

	newLesson := map[string]interface{}{
		"title":      "Sets",
		"subject":    "Maths",
		"content":    "# Sets",
		"difficulty": "Beginner",
	}
	env.run(t, []httpTest{
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/lessons",
			token: getToken(t, env.conf, student), body: newLesson, wantCode: http.StatusForbidden,
		},
		{
			name: "invalid", method: http.MethodPost, path: "/api/lessons", token: teacherToken,
			body: map[string]string{"title": "Sets"}, wantCode: http.StatusBadRequest, wantMsg: "Validation failed",
		},
		{
			name: "unknown prerequisite", method: http.MethodPost, path: "/api/lessons", token: teacherToken,
			body: map[string]interface{}{
				"title": "Sets", "subject": "Maths", "content": "x", "difficulty": "beginner", "prerequisites": []string{"nope"},
			},
			wantCode: http.StatusBadRequest,
		},
	})

	code, resp := env.do(t, http.MethodPost, "/api/lessons", teacherToken, newLesson)
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var lsn lesson.Lesson
	decode(t, resp, &lsn)
	assert.Equal(t, core.Beginner, lsn.Difficulty)
	assert.Equal(t, teacher.ID, lsn.CreatedBy)
	assert.True(t, lsn.IsPublished)

	path := "/api/lessons/" + lsn.ID
	env.run(t, []httpTest{
		{
			name: "other teacher cannot update", method: http.MethodPut, path: path,
			token: getToken(t, env.conf, other), body: map[string]string{"title": "Mine"}, wantCode: http.StatusForbidden,
		},
		{name: "author updates", method: http.MethodPut, path: path, token: teacherToken, body: map[string]string{"title": "Sets 101"}},
		{name: "admin updates", method: http.MethodPut, path: path, token: getToken(t, env.conf, admin), body: map[string]bool{"is_published": false}},
		{name: "drafts are hidden from students", path: path, token: getToken(t, env.conf, student), wantCode: http.StatusNotFound},
		{name: "other teacher cannot delete", method: http.MethodDelete, path: path, token: getToken(t, env.conf, other), wantCode: http.StatusForbidden},
		{name: "author deletes", method: http.MethodDelete, path: path, token: teacherToken, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: teacherToken, wantCode: http.StatusNotFound},
	})
}

func Test_lessonApi_progress(t *testing.T) {
	env := setup(t)
	teacher := dbtest.CreateUser(t, env.usrRepo, "Teacher", "teacher@test.io", strongPwd, user.RoleTeacher, true)
	student := dbtest.CreateUser(t, env.usrRepo, "Student", "student@test.io", strongPwd, user.RoleStudent, true)
	lsn := dbtest.CreateLesson(t, env.lsnRepo, teacher.ID, "Algebra", "Maths", core.Beginner, true)
	token := getToken(t, env.conf, student)
	path := "/api/lessons/" + lsn.ID + "/progress"

	env.run(t, []httpTest{
		{
			name: "invalid status", method: http.MethodPost, path: path, token: token,
			body: map[string]string{"status": "lol"}, wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown lesson", method: http.MethodPost, path: "/api/lessons/nope/progress", token: token,
			body: map[string]int{"time_spent_minutes": 5}, wantCode: http.StatusNotFound,
		},
	})

	code, resp := env.do(t, http.MethodPost, path, token, map[string]interface{}{"progress_percentage": 40, "time_spent_minutes": 10})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var p lesson.Progress
	decode(t, resp, &p)
	assert.Equal(t, lesson.StatusInProgress, p.Status)
	assert.Equal(t, 40.0, p.ProgressPercentage)

	code, resp = env.do(t, http.MethodPost, path, token, map[string]interface{}{"progress_percentage": 150, "time_spent_minutes": 5})
	require.Equal(t, http.StatusOK, code, resp.Message)
	decode(t, resp, &p)
	assert.Equal(t, lesson.StatusCompleted, p.Status)
	assert.Equal(t, 100.0, p.ProgressPercentage)
	assert.Equal(t, 15, p.TimeSpentMinutes)
	assert.True(t, p.CompletedAt.Valid)

	code, resp = env.do(t, http.MethodGet, "/api/lessons/"+lsn.ID, token)
	require.Equal(t, http.StatusOK, code)
	var detail echoapi.LessonDetail
	decode(t, resp, &detail)
	require.NotNil(t, detail.Progress)
	assert.Equal(t, lesson.StatusCompleted, detail.Progress.Status)

	code, resp = env.do(t, http.MethodGet, "/api/auth/me", token)
	require.Equal(t, http.StatusOK, code)
	var me user.User
	decode(t, resp, &me)
	require.NotNil(t, me.Profile)
	assert.Equal(t, 1, me.Profile.TotalLessonsCompleted)
}
