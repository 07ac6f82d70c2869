package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SQLStore keeps sessions in the sessions table, expiry as unix seconds.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, userID string, expiry time.Time) (Session, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, expiry) VALUES ($1, $2, $3)`,
		id, userID, expiry.Unix())
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, UserID: userID, Expiry: expiry.Truncate(time.Second)}, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, expiry FROM sessions WHERE id=$1`, id)
	var sess Session
	var exp int64
	if err := row.Scan(&sess.ID, &sess.UserID, &exp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	sess.Expiry = time.Unix(exp, 0)
	return sess, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expiry <= $1`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SQLUsers resolves session users from the users table.
type SQLUsers struct {
	db *sql.DB
}

func NewSQLUsers(db *sql.DB) *SQLUsers {
	return &SQLUsers{db: db}
}

func (u *SQLUsers) ByID(ctx context.Context, id string) (User, error) {
	row := u.db.QueryRowContext(ctx,
		`SELECT id, email, label, role, active FROM users WHERE id=$1`, id)
	var usr User
	if err := row.Scan(&usr.ID, &usr.Email, &usr.Label, &usr.Role, &usr.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return usr, nil
}
