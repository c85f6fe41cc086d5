package sqlx_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	storage "teaquest/adapters/sqlx"
	"teaquest/core"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

var userCols = []string{"id", "username", "level", "experience", "coins", "created_at"}

var goalCols = []string{
	"id", "user_id", "title", "description", "category", "requirement",
	"progress", "completed", "completed_at", "reward_xp", "reward_coins",
	"reward_card_id", "created_at",
}

func demoUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(int64(1), "player", int64(9), int64(8450), int64(1247), time.Now())
}

func questRow(completed bool) *sqlmock.Rows {
	return sqlmock.NewRows(goalCols).
		AddRow(int64(1), int64(1), "Daily Discovery", "Collect 3 green teas.", "daily",
			int64(3), int64(2), completed, nil, int64(500), int64(200), int64(3), time.Now())
}

func TestSQLMock_GetUser(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, username, level, experience, coins, created_at FROM users`).
		WithArgs(int64(1)).
		WillReturnRows(demoUserRow())

	u, err := store.GetUser(context.Background(), core.UserID(1))
	require.NoError(t, err)
	require.Equal(t, int64(8450), u.Experience)
	require.Equal(t, int64(9), u.Level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetUser_NotFound(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, username, level, experience, coins, created_at FROM users`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), core.UserID(42))
	require.ErrorIs(t, err, core.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ApplyReward_Commit(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE .+ FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(demoUserRow())
	mock.ExpectQuery(`SELECT .+ FROM quests WHERE .+ FOR UPDATE`).
		WithArgs(int64(1), int64(1)).
		WillReturnRows(questRow(false))
	mock.ExpectExec(`UPDATE users SET level`).
		WithArgs(int64(9), int64(8950), int64(1447), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE quests SET completed`).
		WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, quest, leveledUp, err := store.ApplyReward(
		context.Background(), core.UserID(1), core.KindQuest, core.GoalID(1), core.CompletionPolicy{})
	require.NoError(t, err)
	require.Equal(t, int64(8950), user.Experience)
	require.Equal(t, int64(1447), user.Coins)
	require.False(t, leveledUp)
	require.True(t, quest.Completed)
	require.NotNil(t, quest.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_ApplyReward_AlreadyCompleted(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE .+ FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(demoUserRow())
	mock.ExpectQuery(`SELECT .+ FROM quests WHERE .+ FOR UPDATE`).
		WithArgs(int64(1), int64(1)).
		WillReturnRows(questRow(true))
	mock.ExpectRollback()

	_, _, _, err := store.ApplyReward(
		context.Background(), core.UserID(1), core.KindQuest, core.GoalID(1), core.CompletionPolicy{})
	require.ErrorIs(t, err, core.ErrAlreadyCompleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetProgress_AutoComplete(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM achievements WHERE .+ FOR UPDATE`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(goalCols).
			AddRow(int64(2), int64(1), "First Legendary", "Obtain a legendary tea.", "collection",
				int64(1), int64(0), false, nil, int64(750), int64(300), nil, time.Now()))
	mock.ExpectExec(`UPDATE achievements SET progress`).
		WithArgs(int64(1), true, sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	g, auto, err := store.SetProgress(context.Background(), core.KindAchievement, core.GoalID(2), 1)
	require.NoError(t, err)
	require.True(t, auto)
	require.True(t, g.Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GrantCard_Increment(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM tea_cards`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT id, quantity FROM user_cards`).
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow(int64(7), int64(2)))
	mock.ExpectExec(`UPDATE user_cards SET quantity`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	uc, err := store.GrantCard(context.Background(), core.UserID(1), core.CardID(5))
	require.NoError(t, err)
	require.Equal(t, int64(3), uc.Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}
