package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// GroupRepository resolves approver-group identities to member identities.
// Expansion happens once at snapshot time; later membership edits never touch
// in-flight requests.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// ExpandGroup returns the current member identities of a group.
func (r *GroupRepository) ExpandGroup(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT member_id FROM approver_group_members WHERE group_id = $1 ORDER BY member_id`
	var members []string
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("expand group %s: %w", groupID, err)
	}
	return members, nil
}
