package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Fixed-point values are stored as NUMERIC(78,0) and exchanged as text so
// no precision is lost on either side.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies embedded migrations in lexicographic order, tracking
// them in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Apply(ctx context.Context, b *model.Batch) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range b.Positions {
			if err := upsertPosition(ctx, tx, &b.Positions[i]); err != nil {
				return err
			}
		}
		for i := range b.Pools {
			if err := upsertPool(ctx, tx, &b.Pools[i]); err != nil {
				return err
			}
		}
		for i := range b.Entries {
			if err := insertLedgerEntry(ctx, tx, &b.Entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertPosition(ctx context.Context, tx pgx.Tx, p *model.Position) error {
	key := p.Key().Hex()
	if p.IsEmpty() {
		_, err := tx.Exec(ctx, `DELETE FROM positions WHERE key = $1`, key)
		if err != nil {
			return fmt.Errorf("delete position %s: %w", key, err)
		}
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO positions (key, account, collateral_asset, index_asset, is_long,
		                        size, collateral, average_price, entry_funding_rate,
		                        reserve_amount, realised_pnl, last_increased_time)
		 VALUES ($1, $2, $3, $4, $5,
		         $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
		         $10::NUMERIC, $11::NUMERIC, $12)
		 ON CONFLICT (key) DO UPDATE SET
		     size = EXCLUDED.size,
		     collateral = EXCLUDED.collateral,
		     average_price = EXCLUDED.average_price,
		     entry_funding_rate = EXCLUDED.entry_funding_rate,
		     reserve_amount = EXCLUDED.reserve_amount,
		     realised_pnl = EXCLUDED.realised_pnl,
		     last_increased_time = EXCLUDED.last_increased_time,
		     updated_at = NOW()`,
		key, p.Account, p.CollateralAsset, p.IndexAsset, p.IsLong,
		p.Size.String(), p.Collateral.String(), p.AveragePrice.String(), p.EntryFundingRate.String(),
		p.ReserveAmount.String(), p.RealisedPnl.String(), p.LastIncreasedTime,
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", key, err)
	}
	return nil
}

func upsertPool(ctx context.Context, tx pgx.Tx, p *model.PoolEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO pools (asset, pool_amount, reserved_amount, fee_reserves, guaranteed_usd,
		                    cumulative_funding_rate, last_funding_time,
		                    global_short_size, global_short_average_price)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC,
		         $6::NUMERIC, $7, $8::NUMERIC, $9::NUMERIC)
		 ON CONFLICT (asset) DO UPDATE SET
		     pool_amount = EXCLUDED.pool_amount,
		     reserved_amount = EXCLUDED.reserved_amount,
		     fee_reserves = EXCLUDED.fee_reserves,
		     guaranteed_usd = EXCLUDED.guaranteed_usd,
		     cumulative_funding_rate = EXCLUDED.cumulative_funding_rate,
		     last_funding_time = EXCLUDED.last_funding_time,
		     global_short_size = EXCLUDED.global_short_size,
		     global_short_average_price = EXCLUDED.global_short_average_price,
		     updated_at = NOW()`,
		p.Asset, p.PoolAmount.String(), p.ReservedAmount.String(), p.FeeReserves.String(),
		p.GuaranteedUsd.String(), p.CumulativeFundingRate.String(), p.LastFundingTime,
		p.GlobalShortSize.String(), p.GlobalShortAveragePrice.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert pool %s: %w", p.Asset, err)
	}
	return nil
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e *model.LedgerEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, kind, position_key, account, collateral_asset, index_asset, is_long,
		                             size_delta, collateral_delta, price, fee, amount_in, amount_out,
		                             realised_pnl, receiver, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7,
		         $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC,
		         $14::NUMERIC, $15, $16)`,
		e.ID, string(e.Kind), e.PositionKey, e.Account, e.CollateralAsset, e.IndexAsset, e.IsLong,
		e.SizeDelta.String(), e.CollateralDelta.String(), e.Price.String(), e.Fee.String(),
		e.AmountIn.String(), e.AmountOut.String(),
		e.RealisedPnl.String(), e.Receiver, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
	}
	return nil
}

const positionCols = `account, collateral_asset, index_asset, is_long,
	size::TEXT, collateral::TEXT, average_price::TEXT, entry_funding_rate::TEXT,
	reserve_amount::TEXT, realised_pnl::TEXT, last_increased_time`

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var size, collateral, avg, entry, reserve, pnl string
	if err := row.Scan(&p.Account, &p.CollateralAsset, &p.IndexAsset, &p.IsLong,
		&size, &collateral, &avg, &entry, &reserve, &pnl, &p.LastIncreasedTime); err != nil {
		return model.Position{}, err
	}
	var err error
	p.Size, err = parseNumeric(size, err)
	p.Collateral, err = parseNumeric(collateral, err)
	p.AveragePrice, err = parseNumeric(avg, err)
	p.EntryFundingRate, err = parseNumeric(entry, err)
	p.ReserveAmount, err = parseNumeric(reserve, err)
	if err != nil {
		return model.Position{}, err
	}
	if p.RealisedPnl, err = fixed.ParseSigned(pnl); err != nil {
		return model.Position{}, err
	}
	p.LastIncreasedTime = p.LastIncreasedTime.UTC()
	return p, nil
}

const poolCols = `asset, pool_amount::TEXT, reserved_amount::TEXT, fee_reserves::TEXT,
	guaranteed_usd::TEXT, cumulative_funding_rate::TEXT, last_funding_time,
	global_short_size::TEXT, global_short_average_price::TEXT`

func scanPool(row pgx.Row) (model.PoolEntry, error) {
	var p model.PoolEntry
	var pool, reserved, fees, guaranteed, funding, shortSize, shortAvg string
	if err := row.Scan(&p.Asset, &pool, &reserved, &fees, &guaranteed, &funding,
		&p.LastFundingTime, &shortSize, &shortAvg); err != nil {
		return model.PoolEntry{}, err
	}
	var err error
	p.PoolAmount, err = parseNumeric(pool, err)
	p.ReservedAmount, err = parseNumeric(reserved, err)
	p.FeeReserves, err = parseNumeric(fees, err)
	p.GuaranteedUsd, err = parseNumeric(guaranteed, err)
	p.CumulativeFundingRate, err = parseNumeric(funding, err)
	p.GlobalShortSize, err = parseNumeric(shortSize, err)
	p.GlobalShortAveragePrice, err = parseNumeric(shortAvg, err)
	return p, err
}

// parseNumeric parses s unless an earlier parse already failed.
func parseNumeric(s string, prev error) (fixed.Uint, error) {
	if prev != nil {
		return fixed.Zero, prev
	}
	return fixed.Parse(s)
}

func (s *PostgresStore) LoadState(ctx context.Context) ([]model.Position, []model.PoolEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionCols+` FROM positions ORDER BY key`)
	if err != nil {
		return nil, nil, fmt.Errorf("load positions: %w", err)
	}
	positions, err := collect(rows, scanPosition)
	if err != nil {
		return nil, nil, fmt.Errorf("load positions: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT `+poolCols+` FROM pools ORDER BY asset`)
	if err != nil {
		return nil, nil, fmt.Errorf("load pools: %w", err)
	}
	pools, err := collect(rows, scanPool)
	if err != nil {
		return nil, nil, fmt.Errorf("load pools: %w", err)
	}
	return positions, pools, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, key string) (*model.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, `SELECT `+positionCols+` FROM positions WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("position %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", key, err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, account string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE account = $1 ORDER BY key`, account)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPosition)
}

func (s *PostgresStore) GetPoolEntry(ctx context.Context, asset string) (*model.PoolEntry, error) {
	p, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolCols+` FROM pools WHERE asset = $1`, asset))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", asset, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", asset, err)
	}
	return &p, nil
}

const ledgerCols = `id::TEXT, kind, position_key, account, collateral_asset, index_asset, is_long,
	size_delta::TEXT, collateral_delta::TEXT, price::TEXT, fee::TEXT,
	amount_in::TEXT, amount_out::TEXT, realised_pnl::TEXT, receiver, timestamp`

func (s *PostgresStore) GetLedgerEntriesByAccount(ctx context.Context, account string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerCols+` FROM ledger_entries WHERE account = $1 ORDER BY timestamp, id`, account)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLedgerEntry)
}

func (s *PostgresStore) GetLedgerEntriesByPosition(ctx context.Context, key string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerCols+` FROM ledger_entries WHERE position_key = $1 ORDER BY timestamp, id`, key)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLedgerEntry)
}

func scanLedgerEntry(row pgx.Row) (model.LedgerEntry, error) {
	var e model.LedgerEntry
	var kind, size, coll, price, fee, in, out, pnl string
	if err := row.Scan(&e.ID, &kind, &e.PositionKey, &e.Account, &e.CollateralAsset, &e.IndexAsset, &e.IsLong,
		&size, &coll, &price, &fee, &in, &out, &pnl, &e.Receiver, &e.Timestamp); err != nil {
		return model.LedgerEntry{}, err
	}
	e.Kind = model.EntryKind(kind)
	var err error
	e.SizeDelta, err = parseNumeric(size, err)
	e.CollateralDelta, err = parseNumeric(coll, err)
	e.Price, err = parseNumeric(price, err)
	e.Fee, err = parseNumeric(fee, err)
	e.AmountIn, err = parseNumeric(in, err)
	e.AmountOut, err = parseNumeric(out, err)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	if e.RealisedPnl, err = fixed.ParseSigned(pnl); err != nil {
		return model.LedgerEntry{}, err
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func (s *PostgresStore) AssetFlows(ctx context.Context) ([]model.AssetFlow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT collateral_asset, SUM(amount_in)::TEXT, SUM(amount_out)::TEXT
		FROM ledger_entries GROUP BY collateral_asset ORDER BY collateral_asset`)
	if err != nil {
		return nil, fmt.Errorf("asset flows: %w", err)
	}
	return collect(rows, func(row pgx.Row) (model.AssetFlow, error) {
		var f model.AssetFlow
		var in, out string
		if err := row.Scan(&f.Asset, &in, &out); err != nil {
			return model.AssetFlow{}, err
		}
		var err error
		f.In, err = parseNumeric(in, err)
		f.Out, err = parseNumeric(out, err)
		return f, err
	})
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
