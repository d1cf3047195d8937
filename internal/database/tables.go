package database

import (
	"context"
	"fmt"

	"restobook/internal/models"
)

// UpsertTable creates a table or updates its capacity and note.
func (db *DB) UpsertTable(ctx context.Context, table *models.RestTable) error {
	if table.TableNumber <= 0 || table.Capacity <= 0 {
		return fmt.Errorf("invalid table %d with capacity %d", table.TableNumber, table.Capacity)
	}
	query := `INSERT INTO restaurant_tables (table_number, capacity, note) VALUES (?, ?, ?)
			ON CONFLICT(table_number) DO UPDATE SET capacity = excluded.capacity, note = excluded.note`
	if _, err := db.ExecContext(ctx, query, table.TableNumber, table.Capacity, table.Note); err != nil {
		return fmt.Errorf("failed to upsert table %d: %w", table.TableNumber, err)
	}
	return nil
}

// ListTables returns tables ordered by number, without bookings.
func (db *DB) ListTables(ctx context.Context) ([]*models.RestTable, error) {
	rows, err := db.QueryContext(ctx, `SELECT table_number, capacity, note FROM restaurant_tables ORDER BY table_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.RestTable
	for rows.Next() {
		var t models.RestTable
		if err := rows.Scan(&t.TableNumber, &t.Capacity, &t.Note); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// ListTablesWithBookings returns every table with all of its bookings attached.
func (db *DB) ListTablesWithBookings(ctx context.Context) ([]*models.RestTable, error) {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := db.ListBookings(ctx)
	if err != nil {
		return nil, err
	}

	byNumber := make(map[int]*models.RestTable, len(tables))
	for _, t := range tables {
		byNumber[t.TableNumber] = t
	}
	for _, b := range bookings {
		if t, ok := byNumber[b.TableNumber]; ok {
			t.Bookings = append(t.Bookings, b)
		}
	}
	return tables, nil
}

// DistinctCapacities returns capacity tiers in ascending order.
func (db *DB) DistinctCapacities(ctx context.Context) ([]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT capacity FROM restaurant_tables ORDER BY capacity`)
	if err != nil {
		return nil, fmt.Errorf("failed to list capacities: %w", err)
	}
	defer rows.Close()

	var caps []int
	for rows.Next() {
		var c int
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan capacity: %w", err)
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}
