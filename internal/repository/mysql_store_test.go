package repository

import (
    "context"
    "errors"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/gate-redemption/internal/model"
)

const tid = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

var (
    created = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
    cols    = []string{"id", "code", "holder_name", "holder_contact", "category", "last_redeemed_at", "invalidated_at", "created_at"}
    occCols = []string{"ticket_id", "occasion", "redeemed_at"}

    selectByID  = regexp.QuoteMeta(`SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`)
    lockByID    = regexp.QuoteMeta(`SELECT ` + ticketColumns + ` FROM tickets WHERE id = ? FOR UPDATE`)
    selectOcc   = regexp.QuoteMeta(`SELECT ticket_id, occasion, redeemed_at FROM ticket_occasions WHERE ticket_id IN (?)`)
    updateLast  = regexp.QuoteMeta(`UPDATE tickets SET last_redeemed_at = ? WHERE id = ?`)
    upsertOcc   = regexp.QuoteMeta(`INSERT INTO ticket_occasions (ticket_id, occasion, redeemed_at)`)
    insertAudit = regexp.QuoteMeta(`INSERT INTO override_log`)
)

func newMock(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })
    return NewMySQLStore(db), mock
}

func ticketRow(last any) *sqlmock.Rows {
    return sqlmock.NewRows(cols).AddRow(tid, "424242", "Chiara", "chiara@example.com", "MULTI", last, nil, created)
}

func TestGetByIDWithOccasions(t *testing.T) {
    s, mock := newMock(t)
    at := created.Add(time.Hour)
    mock.ExpectQuery(selectByID).WithArgs(tid).WillReturnRows(ticketRow(at))
    mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols).AddRow(tid, "A", at))

    got, err := s.GetByID(context.Background(), tid)
    require.NoError(t, err)
    assert.Equal(t, model.CategoryMulti, got.Category)
    require.NotNil(t, got.LastRedeemedAt)
    assert.True(t, got.LastRedeemedAt.Equal(at))
    assert.Nil(t, got.InvalidatedAt)
    assert.Equal(t, map[string]time.Time{"A": at}, got.Redemptions)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
    s, mock := newMock(t)
    mock.ExpectQuery(selectByID).WithArgs(tid).WillReturnRows(sqlmock.NewRows(cols))

    _, err := s.GetByID(context.Background(), tid)
    assert.ErrorIs(t, err, ErrTicketNotFound)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownCategoryReadsAsSingle(t *testing.T) {
    s, mock := newMock(t)
    mock.ExpectQuery(regexp.QuoteMeta(`FROM tickets WHERE code = ?`)).WithArgs("424242").
        WillReturnRows(sqlmock.NewRows(cols).AddRow(tid, "424242", "Chiara", "", "VIP", nil, nil, created))
    mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols))

    got, err := s.GetByCode(context.Background(), "424242")
    require.NoError(t, err)
    assert.Equal(t, model.CategorySingle, got.Category)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchEscapesWildcards(t *testing.T) {
    s, mock := newMock(t)
    mock.ExpectQuery(regexp.QuoteMeta(`WHERE LOWER(holder_name) LIKE ? OR LOWER(holder_contact) LIKE ? OR code LIKE ?`)).
        WithArgs(`%50\%_off%`, `%50\%_off%`, `%50\%_off%`, 5).
        WillReturnRows(sqlmock.NewRows(cols))

    got, err := s.Search(context.Background(), " 50%_OFF ", 5)
    require.NoError(t, err)
    assert.Empty(t, got)

    got, err = s.Search(context.Background(), "  ", 5)
    require.NoError(t, err)
    assert.Empty(t, got)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicate(t *testing.T) {
    s, mock := newMock(t)
    mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tickets`)).
        WithArgs(tid, "424242", "Chiara", "", "SINGLE", sqlmock.AnyArg()).
        WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

    err := s.Create(context.Background(), &model.Ticket{ID: tid, Code: "424242", HolderName: "Chiara", Category: model.CategorySingle})
    assert.ErrorIs(t, err, ErrDuplicateTicket)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTicketLockCommits(t *testing.T) {
    s, mock := newMock(t)
    now := created.Add(2 * time.Hour)

    mock.ExpectBegin()
    mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnRows(ticketRow(nil))
    mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols))
    mock.ExpectExec(upsertOcc).WithArgs(tid, "B", now).WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec(updateLast).WithArgs(now, tid).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(insertAudit).
        WithArgs("e1", tid, "FORCE_ADMIT", "holder at desk", "sup-1", "B", now).
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectCommit()

    err := s.WithTicketLock(context.Background(), tid, func(lt LockedTicket) error {
        assert.Nil(t, lt.Ticket().LastRedeemedAt)
        if err := lt.MarkRedeemed(context.Background(), "B", now); err != nil {
            return err
        }
        assert.NotNil(t, lt.Ticket().LastRedeemedAt)
        return lt.AppendOverride(context.Background(), model.OverrideLogEntry{
            ID: "e1", TicketID: tid, Action: model.ActionForceAdmit, Justification: "holder at desk",
            OperatorID: "sup-1", Occasion: "B", CreatedAt: now,
        })
    })
    require.NoError(t, err)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTicketLockRollsBackOnCallbackError(t *testing.T) {
    s, mock := newMock(t)
    mock.ExpectBegin()
    mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnRows(ticketRow(created))
    mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols))
    mock.ExpectRollback()

    err := s.WithTicketLock(context.Background(), tid, func(LockedTicket) error {
        return model.ErrAlreadyRedeemed
    })
    assert.ErrorIs(t, err, model.ErrAlreadyRedeemed)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTicketLockNotFound(t *testing.T) {
    s, mock := newMock(t)
    mock.ExpectBegin()
    mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnRows(sqlmock.NewRows(cols))
    mock.ExpectRollback()

    called := false
    err := s.WithTicketLock(context.Background(), tid, func(LockedTicket) error { called = true; return nil })
    assert.ErrorIs(t, err, ErrTicketNotFound)
    assert.False(t, called)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTicketLockTransientFailures(t *testing.T) {
    t.Run("lock wait timeout", func(t *testing.T) {
        s, mock := newMock(t)
        mock.ExpectBegin()
        mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
        mock.ExpectRollback()

        err := s.WithTicketLock(context.Background(), tid, func(LockedTicket) error { return nil })
        assert.ErrorIs(t, err, ErrStoreUnavailable)
        assert.NoError(t, mock.ExpectationsWereMet())
    })

    t.Run("update fails", func(t *testing.T) {
        s, mock := newMock(t)
        mock.ExpectBegin()
        mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnRows(ticketRow(nil))
        mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols))
        mock.ExpectExec(updateLast).WillReturnError(mysql.ErrInvalidConn)
        mock.ExpectRollback()

        err := s.WithTicketLock(context.Background(), tid, func(lt LockedTicket) error {
            return lt.MarkRedeemed(context.Background(), "", created)
        })
        assert.ErrorIs(t, err, ErrStoreUnavailable)
        assert.NoError(t, mock.ExpectationsWereMet())
    })

    t.Run("commit fails", func(t *testing.T) {
        s, mock := newMock(t)
        mock.ExpectBegin()
        mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnRows(ticketRow(nil))
        mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols))
        mock.ExpectExec(updateLast).WillReturnResult(sqlmock.NewResult(0, 1))
        mock.ExpectCommit().WillReturnError(mysql.ErrInvalidConn)

        err := s.WithTicketLock(context.Background(), tid, func(lt LockedTicket) error {
            return lt.MarkRedeemed(context.Background(), "", created)
        })
        assert.ErrorIs(t, err, ErrStoreUnavailable)
    })

    t.Run("begin fails", func(t *testing.T) {
        s, mock := newMock(t)
        mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

        err := s.WithTicketLock(context.Background(), tid, func(LockedTicket) error { return nil })
        assert.Error(t, err)
        assert.NoError(t, mock.ExpectationsWereMet())
    })
}

func TestClearRedeemedOccasion(t *testing.T) {
    s, mock := newMock(t)
    a := created.Add(time.Hour)
    b := created.Add(25 * time.Hour)

    mock.ExpectBegin()
    mock.ExpectQuery(lockByID).WithArgs(tid).WillReturnRows(ticketRow(b))
    mock.ExpectQuery(selectOcc).WithArgs(tid).WillReturnRows(sqlmock.NewRows(occCols).AddRow(tid, "A", a).AddRow(tid, "B", b))
    mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ticket_occasions WHERE ticket_id = ? AND occasion = ?`)).
        WithArgs(tid, "B").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta(`UPDATE tickets SET last_redeemed_at = (SELECT MAX(redeemed_at)`)).
        WithArgs(tid, tid).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    err := s.WithTicketLock(context.Background(), tid, func(lt LockedTicket) error {
        if err := lt.ClearRedeemed(context.Background(), "B"); err != nil {
            return err
        }
        got := lt.Ticket()
        assert.NotContains(t, got.Redemptions, "B")
        require.NotNil(t, got.LastRedeemedAt)
        assert.True(t, got.LastRedeemedAt.Equal(a))
        return nil
    })
    require.NoError(t, err)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverridesNewestFirst(t *testing.T) {
    s, mock := newMock(t)
    rows := sqlmock.NewRows([]string{"id", "ticket_id", "action", "justification", "operator_id", "occasion", "created_at"}).
        AddRow("e2", tid, "RESET", "second", "sup-1", "", created.Add(time.Minute)).
        AddRow("e1", tid, "FORCE_ADMIT", "first", "sup-1", "", created)
    mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC`)).WithArgs(tid).WillReturnRows(rows)

    got, err := s.ListOverrides(context.Background(), tid)
    require.NoError(t, err)
    require.Len(t, got, 2)
    assert.Equal(t, model.ActionReset, got[0].Action)
    assert.Equal(t, "e1", got[1].ID)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
    assert.NoError(t, classify(nil))
    assert.ErrorIs(t, classify(&mysql.MySQLError{Number: 1213}), ErrStoreUnavailable)
    assert.ErrorIs(t, classify(context.DeadlineExceeded), ErrStoreUnavailable)
    other := &mysql.MySQLError{Number: 1146}
    assert.NotErrorIs(t, classify(other), ErrStoreUnavailable)
}
