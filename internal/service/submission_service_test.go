package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/repository"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

type storedGrade struct {
	score    int
	feedback string
}

type mockSubmissionRepo struct {
	byID         map[string]*models.Submission
	byAssignment map[string]*models.Submission
	created      []*models.Submission
	createErr    error
	graded       map[string]storedGrade
}

func newMockSubmissionRepo() *mockSubmissionRepo {
	return &mockSubmissionRepo{
		byID:         map[string]*models.Submission{},
		byAssignment: map[string]*models.Submission{},
		graded:       map[string]storedGrade{},
	}
}

func (m *mockSubmissionRepo) FindByID(_ context.Context, id string) (*models.Submission, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) FindByAssignment(_ context.Context, assignmentID string) (*models.Submission, error) {
	if s, ok := m.byAssignment[assignmentID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	if m.createErr != nil {
		return m.createErr
	}
	if submission.ID == "" {
		submission.ID = "sub-" + submission.AssignmentID
	}
	m.created = append(m.created, submission)
	m.byID[submission.ID] = submission
	m.byAssignment[submission.AssignmentID] = submission
	return nil
}

func (m *mockSubmissionRepo) UpdateGrade(_ context.Context, id string, score int, feedback string, _ string, _ time.Time) error {
	m.graded[id] = storedGrade{score: score, feedback: feedback}
	return nil
}

func scoreOf(n int) *int {
	return &n
}

type mockAssignmentRepo struct {
	details map[string]*models.AssignmentDetail
}

func (m *mockAssignmentRepo) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	if d, ok := m.details[id]; ok {
		return &d.Assignment, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) FindDetailByID(_ context.Context, id string) (*models.AssignmentDetail, error) {
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) ListByStudent(_ context.Context, studentID string) ([]models.AssignmentDetail, error) {
	var out []models.AssignmentDetail
	for _, d := range m.details {
		if d.StudentID == studentID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) FindByTaskAndStudent(_ context.Context, taskID, studentID string) (*models.Assignment, error) {
	for _, d := range m.details {
		if d.TaskID == taskID && d.StudentID == studentID {
			return &d.Assignment, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) UpdateStatus(_ context.Context, id string, status models.AssignmentStatus, submittedAt *time.Time) error {
	d, ok := m.details[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.Status = status
	d.SubmittedAt = submittedAt
	return nil
}

type mockTaskLookup struct {
	tasks map[string]*models.Task
}

func (m *mockTaskLookup) FindByID(_ context.Context, id string) (*models.Task, error) {
	if t, ok := m.tasks[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

type recordedNotice struct {
	kind    string
	userID  string
	title   string
	score   *int
	student string
}

type mockNotifier struct {
	notices []recordedNotice
}

func (m *mockNotifier) NotifySubmissionReceived(_ context.Context, teacherID, studentName, taskTitle string) error {
	m.notices = append(m.notices, recordedNotice{kind: "submission", userID: teacherID, title: taskTitle, student: studentName})
	return nil
}

func (m *mockNotifier) NotifyFeedbackReceived(_ context.Context, studentID, taskTitle string, score *int) error {
	m.notices = append(m.notices, recordedNotice{kind: "feedback", userID: studentID, title: taskTitle, score: score})
	return nil
}

func submissionFixture(t *testing.T) (*SubmissionService, *mockSubmissionRepo, *mockAssignmentRepo, *mockNotifier) {
	t.Helper()
	subs := newMockSubmissionRepo()
	assignments := &mockAssignmentRepo{details: map[string]*models.AssignmentDetail{
		"as-1": {
			Assignment: models.Assignment{
				ID:        "as-1",
				TaskID:    "task-1",
				StudentID: "student-1",
				Status:    models.AssignmentPending,
			},
			TaskTitle:   "Essay on photosynthesis",
			StudentName: "Dewi",
		},
	}}
	tasks := &mockTaskLookup{tasks: map[string]*models.Task{
		"task-1": {ID: "task-1", Title: "Essay on photosynthesis", CreatedBy: "teacher-1"},
	}}
	notifier := &mockNotifier{}
	svc := NewSubmissionService(subs, assignments, tasks, notifier, nil, nil, nil, 0, nil)
	return svc, subs, assignments, notifier
}

func TestSubmitNotifiesTaskCreator(t *testing.T) {
	svc, subs, _, notifier := submissionFixture(t)
	student := &models.JWTClaims{UserID: "student-1", Name: "Dewi", Role: models.RoleStudent}

	got, err := svc.Submit(context.Background(), "as-1", student, SubmitRequest{Content: "my essay"})
	require.NoError(t, err)
	require.Len(t, subs.created, 1)
	assert.Equal(t, "my essay", got.Content)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "submission", notifier.notices[0].kind)
	assert.Equal(t, "teacher-1", notifier.notices[0].userID)
	assert.Equal(t, "Dewi", notifier.notices[0].student)
}

func TestSubmitRejectsForeignAssignment(t *testing.T) {
	svc, subs, _, _ := submissionFixture(t)
	intruder := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), "as-1", intruder, SubmitRequest{Content: "not mine"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, subs.created)
}

func TestSubmitDuplicateIsConflict(t *testing.T) {
	svc, subs, _, _ := submissionFixture(t)
	subs.createErr = repository.ErrDuplicateSubmission
	student := &models.JWTClaims{UserID: "student-1", Name: "Dewi", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), "as-1", student, SubmitRequest{Content: "again"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitRequiresContentOrFile(t *testing.T) {
	svc, _, _, _ := submissionFixture(t)
	student := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}

	_, err := svc.Submit(context.Background(), "as-1", student, SubmitRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradeCreatesMissingSubmission(t *testing.T) {
	svc, subs, _, notifier := submissionFixture(t)

	got, err := svc.Grade(context.Background(), "as-1", "teacher-1", GradeRequest{Score: scoreOf(85), Feedback: "good work"})
	require.NoError(t, err)
	require.Len(t, subs.created, 1)

	require.NotNil(t, got.Score)
	assert.Equal(t, 85, *got.Score)
	require.NotNil(t, got.GradedBy)
	assert.Equal(t, "teacher-1", *got.GradedBy)

	stored, ok := subs.graded[got.ID]
	require.True(t, ok)
	assert.Equal(t, 85, stored.score)
	assert.Equal(t, "good work", stored.feedback)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "feedback", notifier.notices[0].kind)
	assert.Equal(t, "student-1", notifier.notices[0].userID)
	require.NotNil(t, notifier.notices[0].score)
	assert.Equal(t, 85, *notifier.notices[0].score)
}

func TestGradeForbiddenForOtherTeacher(t *testing.T) {
	svc, _, _, _ := submissionFixture(t)

	_, err := svc.Grade(context.Background(), "as-1", "teacher-2", GradeRequest{Score: scoreOf(50)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGradeAcceptsBoundaryScores(t *testing.T) {
	for _, score := range []int{0, 100} {
		svc, subs, _, _ := submissionFixture(t)

		got, err := svc.Grade(context.Background(), "as-1", "teacher-1", GradeRequest{Score: scoreOf(score)})
		require.NoError(t, err, "score %d must be gradable", score)
		require.NotNil(t, got.Score)
		assert.Equal(t, score, *got.Score)
		assert.Equal(t, score, subs.graded[got.ID].score)
	}
}

func TestGradeRejectsOutOfRangeScore(t *testing.T) {
	svc, _, _, _ := submissionFixture(t)

	for _, score := range []int{-1, 101, 150} {
		_, err := svc.Grade(context.Background(), "as-1", "teacher-1", GradeRequest{Score: scoreOf(score)})
		require.Error(t, err, "score %d must be rejected", score)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestGradeRequiresScore(t *testing.T) {
	svc, subs, _, _ := submissionFixture(t)

	_, err := svc.Grade(context.Background(), "as-1", "teacher-1", GradeRequest{Feedback: "forgot the score"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, subs.created)
}
