package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

const defaultBacklogTable = "supporters"

// BacklogStore reads pending supporters and writes enrichment results back.
type BacklogStore struct {
	db    DB
	table string
}

// NewBacklogStore wraps db. An empty table defaults to "supporters".
func NewBacklogStore(db DB, table string) (*BacklogStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if table == "" {
		table = defaultBacklogTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &BacklogStore{db: db, table: table}, nil
}

// PendingRecords returns the supporters of batchID that have every input
// field and have not been processed yet.
func (s *BacklogStore) PendingRecords(ctx context.Context, batchID string) ([]enrich.BacklogRecord, error) {
	query := fmt.Sprintf(`
SELECT cpf, birthday, mother_name
FROM %s
WHERE contract_id = $1
  AND cpf IS NOT NULL
  AND birthday IS NOT NULL
  AND mother_name IS NOT NULL
  AND (rpa_filled IS NULL OR rpa_filled = FALSE)
  AND (preenchidorpa IS NULL OR preenchidorpa = FALSE)`, s.table)

	rows, err := s.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("query pending supporters: %w", err)
	}
	defer rows.Close()

	var out []enrich.BacklogRecord
	for rows.Next() {
		var rec enrich.BacklogRecord
		if err := rows.Scan(&rec.ID, &rec.BirthDate, &rec.MotherName); err != nil {
			return nil, fmt.Errorf("scan pending supporter: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending supporters: %w", err)
	}
	return out, nil
}

// Upsert writes result for the supporter keyed by id and marks it processed.
// A nil result stores all-null fields with biometry false.
func (s *BacklogStore) Upsert(ctx context.Context, id string, result *enrich.Result) error {
	if id == "" {
		return fmt.Errorf("%w: empty supporter id", enrich.ErrPersistence)
	}
	if result == nil {
		result = &enrich.Result{}
	}
	query := fmt.Sprintf(`
UPDATE %s SET
  local_voting = $1,
  voting_address = $2,
  voting_city = $3,
  neighborhood = $4,
  session = $5,
  voting_zone = $6,
  voting_country = $7,
  biometry = $8,
  rpa_filled = TRUE,
  preenchidorpa = TRUE
WHERE cpf = $9`, s.table)

	tag, err := s.db.Exec(ctx, query,
		nullable(result.Local),
		nullable(result.Endereco),
		nullable(result.Municipio),
		nullable(result.Bairro),
		nullable(result.Secao),
		nullable(result.Zona),
		nullable(result.Pais),
		result.Biometria,
		id,
	)
	if err != nil {
		return fmt.Errorf("%w: update supporter: %w", enrich.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no supporter matched", enrich.ErrPersistence)
	}
	return nil
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
