package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// ErrDuplicateSubmission is returned when an assignment already has a
// submission. The unique constraint on assignment_id enforces the
// one-submission rule at the storage layer.
var ErrDuplicateSubmission = errors.New("assignment already has a submission")

// SubmissionRepository manages student submissions and grades.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a new submission repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = "id, assignment_id, content, file_path, submitted_at, score, feedback, feedback_provided_at, graded_by"

// FindByID returns a submission by ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE id = $1", submissionColumns)
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByAssignment returns the submission attached to an assignment, if any.
func (r *SubmissionRepository) FindByAssignment(ctx context.Context, assignmentID string) (*models.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE assignment_id = $1", submissionColumns)
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, query, assignmentID); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a submission and flips its assignment to completed in
// one transaction. A unique violation on assignment_id surfaces as
// ErrDuplicateSubmission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO submissions (id, assignment_id, content, file_path, submitted_at, score, feedback, feedback_provided_at, graded_by)
VALUES (:id, :assignment_id, :content, :file_path, :submitted_at, :score, :feedback, :feedback_provided_at, :graded_by)`
	if _, err := tx.NamedExecContext(ctx, insert, submission); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateSubmission
		}
		return fmt.Errorf("create submission: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignments SET status = $1, submitted_at = $2 WHERE id = $3`,
		models.AssignmentCompleted, submission.SubmittedAt, submission.AssignmentID); err != nil {
		return fmt.Errorf("complete assignment: %w", err)
	}
	return tx.Commit()
}

// UpdateGrade records score and feedback on an existing submission.
func (r *SubmissionRepository) UpdateGrade(ctx context.Context, id string, score int, feedback string, gradedBy string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET score = $1, feedback = $2, feedback_provided_at = $3, graded_by = $4 WHERE id = $5`,
		score, feedback, at, gradedBy, id)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("submission %s not found", id)
	}
	return nil
}
