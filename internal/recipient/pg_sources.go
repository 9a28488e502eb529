package recipient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

const followerQuery = `
	SELECT u.email, u.display_name
	FROM store_followers f
	JOIN users u ON u.id = f.user_id
	WHERE f.store_id = $1
	  AND u.notify_opt_in = TRUE`

const staffQuery = `
	SELECT u.email, u.display_name
	FROM store_staff st
	JOIN users u ON u.id = st.user_id
	WHERE st.store_id = $1
	  AND st.active = TRUE
	  AND st.role IN ('admin', 'moderator')`

// FollowerSource lists store followers who opted into notifications.
type FollowerSource struct {
	pool *pgxpool.Pool
}

func NewFollowerSource(pool *pgxpool.Pool) *FollowerSource {
	return &FollowerSource{pool: pool}
}

func (s *FollowerSource) Name() string { return "followers" }

func (s *FollowerSource) ListOptedInContacts(ctx context.Context, subjectID string) ([]domain.Recipient, error) {
	rows, err := s.pool.Query(ctx, followerQuery, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	return scanRecipients(rows, subjectID)
}

// StaffSource lists active staff members holding a role that receives
// store notifications (admin or moderator).
type StaffSource struct {
	pool *pgxpool.Pool
}

func NewStaffSource(pool *pgxpool.Pool) *StaffSource {
	return &StaffSource{pool: pool}
}

func (s *StaffSource) Name() string { return "staff" }

func (s *StaffSource) ListOptedInContacts(ctx context.Context, subjectID string) ([]domain.Recipient, error) {
	rows, err := s.pool.Query(ctx, staffQuery, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	return scanRecipients(rows, subjectID)
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecipients(rows pgRows, subjectID string) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.ContactAddress, &r.DisplayName); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		r.SubjectID = subjectID
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// compile-time checks
var (
	_ Source = (*FollowerSource)(nil)
	_ Source = (*StaffSource)(nil)
)
