package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/wablast-backend/internal/model"
)

// ProgressRepositoryInterface is the append-only delivery log. One row
// per attempted recipient, keyed by campaign id and recipient index, so
// a restarted process can pick a campaign up where it left off.
type ProgressRepositoryInterface interface {
	Append(campaignID string, index int, result model.AttemptResult) error
	// NextIndex returns the cursor a resubmitted campaign should resume
	// from: one past the highest logged index, 0 when nothing is logged.
	NextIndex(campaignID string) (int, error)
	// Counts returns the sent/failed totals recorded for a campaign.
	Counts(campaignID string) (sent, failed int, err error)
	// History returns the logged attempts for a campaign in index order.
	History(campaignID string) ([]LoggedAttempt, error)
}

// LoggedAttempt is one persisted delivery attempt row.
type LoggedAttempt struct {
	RecipientIndex int       `json:"recipient_index"`
	Recipient      string    `json:"recipient"`
	Outcome        string    `json:"outcome"`
	Detail         string    `json:"detail,omitempty"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
}

type ProgressRepository struct {
	DB *sql.DB
}

func (r *ProgressRepository) Append(campaignID string, index int, result model.AttemptResult) error {
	query := `
        INSERT INTO delivery_attempts (campaign_id, recipient_index, recipient, outcome, detail, attempts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.DB.Exec(query, campaignID, index, result.Recipient, string(result.Outcome), result.Detail, result.Attempts, time.Now())
	return err
}

func (r *ProgressRepository) NextIndex(campaignID string) (int, error) {
	query := `SELECT COALESCE(MAX(recipient_index), -1) FROM delivery_attempts WHERE campaign_id=$1`
	var last int
	if err := r.DB.QueryRow(query, campaignID).Scan(&last); err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (r *ProgressRepository) Counts(campaignID string) (int, int, error) {
	query := `SELECT outcome, COUNT(*) FROM delivery_attempts WHERE campaign_id=$1 GROUP BY outcome`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	var sent, failed int
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return 0, 0, err
		}
		if outcome == string(model.OutcomeSent) {
			sent += count
		} else {
			failed += count
		}
	}
	return sent, failed, rows.Err()
}

func (r *ProgressRepository) History(campaignID string) ([]LoggedAttempt, error) {
	query := `
        SELECT recipient_index, recipient, outcome, detail, attempts, created_at
        FROM delivery_attempts WHERE campaign_id=$1 ORDER BY recipient_index
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoggedAttempt
	for rows.Next() {
		var a LoggedAttempt
		if err := rows.Scan(&a.RecipientIndex, &a.Recipient, &a.Outcome, &a.Detail, &a.Attempts, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ ProgressRepositoryInterface = (*ProgressRepository)(nil)
