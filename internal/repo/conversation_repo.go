package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/starfire-ai/kbase/internal/model"
	"github.com/starfire-ai/kbase/internal/pkg/dbutil"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Append(ctx context.Context, turn *model.ConversationTurn) error {
	data := map[string]interface{}{
		"session_id": turn.SessionID,
		"role":       turn.Role,
		"content":    turn.Content,
		"ctime":      turn.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("conversation_turns", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListRecent returns the newest turns of a session in chronological order.
func (r *ConversationRepo) ListRecent(ctx context.Context, sessionID string, limit uint) ([]model.ConversationTurn, error) {
	const query = `
		SELECT session_id, seq, role, content, ctime FROM (
			SELECT session_id, seq, role, content, ctime
			FROM conversation_turns
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var turns []model.ConversationTurn
	for rows.Next() {
		var turn model.ConversationTurn
		if err := rows.Scan(&turn.SessionID, &turn.Seq, &turn.Role, &turn.Content, &turn.Ctime); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (r *ConversationRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM conversation_turns WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
