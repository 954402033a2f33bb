package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

func TestNewBacklogStoreValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewBacklogStore(mock, "supporters; DROP TABLE x")
	require.Error(t, err)
	_, err = NewBacklogStore(nil, "")
	require.Error(t, err)
	s, err := NewBacklogStore(mock, "")
	require.NoError(t, err)
	require.Equal(t, "supporters", s.table)
}

func TestPendingRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	born := time.Date(1980, time.February, 3, 0, 0, 0, 0, time.UTC)
	rows := mock.NewRows([]string{"cpf", "birthday", "mother_name"}).
		AddRow("123.456.789-09", "1990-05-21", "Ana Lúcia").
		AddRow("98765432100", born, "Maria")
	mock.ExpectQuery(`SELECT cpf, birthday, mother_name\s+FROM supporters\s+WHERE contract_id = \$1`).
		WithArgs("42").
		WillReturnRows(rows)

	s, err := NewBacklogStore(mock, "supporters")
	require.NoError(t, err)
	got, err := s.PendingRecords(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, []enrich.BacklogRecord{
		{ID: "123.456.789-09", BirthDate: "1990-05-21", MotherName: "Ana Lúcia"},
		{ID: "98765432100", BirthDate: born, MotherName: "Maria"},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingRecordsQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT cpf").WithArgs("42").WillReturnError(errors.New("connection reset"))
	s, err := NewBacklogStore(mock, "")
	require.NoError(t, err)
	_, err = s.PendingRecords(context.Background(), "42")
	require.ErrorContains(t, err, "connection reset")
}

func TestUpsertWritesAllColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	local, zona, pais := "ESCOLA X", "001", "BRASIL"
	mock.ExpectExec(`UPDATE supporters SET`).
		WithArgs("ESCOLA X", nil, nil, nil, nil, "001", "BRASIL", true, "123.456.789-09").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s, err := NewBacklogStore(mock, "")
	require.NoError(t, err)
	err = s.Upsert(context.Background(), "123.456.789-09", &enrich.Result{Local: &local, Zona: &zona, Pais: &pais, Biometria: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNilResultStoresNulls(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE supporters SET`).
		WithArgs(nil, nil, nil, nil, nil, nil, nil, false, "111").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s, err := NewBacklogStore(mock, "")
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), "111", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFailuresWrapPersistenceError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE supporters SET`).
		WithArgs(nil, nil, nil, nil, nil, nil, nil, false, "111").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectExec(`UPDATE supporters SET`).
		WithArgs(nil, nil, nil, nil, nil, nil, nil, false, "222").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s, err := NewBacklogStore(mock, "")
	require.NoError(t, err)
	require.ErrorIs(t, s.Upsert(context.Background(), "111", nil), enrich.ErrPersistence)
	require.ErrorIs(t, s.Upsert(context.Background(), "222", nil), enrich.ErrPersistence)
	require.ErrorIs(t, s.Upsert(context.Background(), "", nil), enrich.ErrPersistence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS enrichment_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE supporters ADD COLUMN IF NOT EXISTS voting_country TEXT")).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	require.NoError(t, EnsureSchema(context.Background(), mock, ""))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaUsesBacklogTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS enrichment_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE campaign_supporters ADD COLUMN IF NOT EXISTS voting_country TEXT")).
		WillReturnError(errors.New("permission denied"))
	err = EnsureSchema(context.Background(), mock, "campaign_supporters")
	require.ErrorContains(t, err, "campaign_supporters")
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, EnsureSchema(context.Background(), mock, "bad;table"))
}
