package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const menuColumns = `id, name, category, price, quantity, total_sold, image_url`

func scanMenuItem(row pgx.Row) (*models.MenuItem, error) {
	var m models.MenuItem
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Price, &m.Quantity, &m.TotalSold, &m.ImageURL)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func validateMenuItem(name, category string, price int64, quantity int) error {
	if strings.TrimSpace(name) == "" {
		return validationErr("menu item name is required")
	}
	if strings.TrimSpace(category) == "" {
		return validationErr("menu item category is required")
	}
	if price <= 0 {
		return validationErr("menu item price must be positive")
	}
	if quantity < 0 {
		return validationErr("menu item quantity cannot be negative")
	}
	return nil
}

// AddMenuItem creates a menu item and lazily assigns a colour to its
// category. Names are unique so the order parser can resolve lines
// unambiguously.
func AddMenuItem(ctx context.Context, in models.MenuItem) (*models.MenuItem, error) {
	if err := validateMenuItem(in.Name, in.Category, in.Price, in.Quantity); err != nil {
		return nil, err
	}
	in.ID = uuid.NewString()
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO menu_items (id, name, category, price, quantity, total_sold, image_url)
		VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		in.ID, in.Name, in.Category, in.Price, in.Quantity, in.ImageURL,
	)
	if isUniqueViolation(err) {
		return nil, validationErr("menu item already exists: " + in.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert menu item: %w", err)
	}

	if _, err := EnsureCategoryColor(ctx, in.Category); err != nil {
		return nil, err
	}
	return &in, nil
}

func ListMenuItems(ctx context.Context) ([]models.MenuItem, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+menuColumns+` FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

func GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	m, err := scanMenuItem(db.Pool.QueryRow(ctx,
		`SELECT `+menuColumns+` FROM menu_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "menu item", IDs: []string{id}}
	}
	if err != nil {
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	return m, nil
}

// UpdateMenuItem overwrites the mutable fields of an existing item.
// TotalSold is not client-writable; it only moves through order creation
// and ResetItemStats.
func UpdateMenuItem(ctx context.Context, in models.MenuItem) (*models.MenuItem, error) {
	if in.ID == "" {
		return nil, validationErr("invalid menu item ID")
	}
	if err := validateMenuItem(in.Name, in.Category, in.Price, in.Quantity); err != nil {
		return nil, err
	}

	m, err := scanMenuItem(db.Pool.QueryRow(ctx, `
		UPDATE menu_items SET
			name = $1,
			category = $2,
			price = $3,
			quantity = $4,
			image_url = $5,
			updated_at = now()
		WHERE id = $6
		RETURNING `+menuColumns,
		strings.TrimSpace(in.Name), strings.TrimSpace(in.Category),
		in.Price, in.Quantity, in.ImageURL, in.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "menu item", IDs: []string{in.ID}}
	}
	if isUniqueViolation(err) {
		return nil, validationErr("menu item already exists: " + in.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("update menu item: %w", err)
	}

	if _, err := EnsureCategoryColor(ctx, m.Category); err != nil {
		return nil, err
	}
	return m, nil
}

// ResetItemStats zeroes the sold counter for one item.
func ResetItemStats(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE menu_items SET total_sold = 0, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset item stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "menu item", IDs: []string{id}}
	}
	return nil
}

func DeleteMenuItem(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "menu item", IDs: []string{id}}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
