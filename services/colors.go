package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/models"

	"github.com/jackc/pgx/v5"
)

// GenerateCategoryColor derives a stable pastel HSL colour from the
// category name, so the same category always renders the same shade
// on every client without coordination.
func GenerateCategoryColor(category string) string {
	var hash int32
	for _, r := range category {
		hash = int32(r) + ((hash << 5) - hash)
	}
	hue := int(hash) % 360
	if hue < 0 {
		hue += 360
	}
	// Saturation lands in 60-80 and lightness in 75-85.
	sat := 60 + absInt(int(hash>>8))%21
	light := 75 + absInt(int(hash>>16))%11
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, sat, light)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// EnsureCategoryColor returns the stored colour for a category,
// generating and persisting one on first sight.
func EnsureCategoryColor(ctx context.Context, category string) (string, error) {
	var color string
	err := db.Pool.QueryRow(ctx,
		`SELECT color FROM category_colors WHERE category = $1`, category).Scan(&color)
	if err == nil {
		return color, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("get category color: %w", err)
	}

	color = GenerateCategoryColor(category)
	// Another writer may race us to the insert; their colour wins.
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO category_colors (category, color)
		VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET color = category_colors.color
		RETURNING color`,
		category, color).Scan(&color)
	if err != nil {
		return "", fmt.Errorf("store category color: %w", err)
	}
	return color, nil
}

// SetCategoryColor overrides the colour for a category.
func SetCategoryColor(ctx context.Context, category, color string) error {
	if category == "" {
		return validationErr("category is required")
	}
	if color == "" {
		return validationErr("color is required")
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO category_colors (category, color)
		VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET color = EXCLUDED.color, updated_at = now()`,
		category, color)
	if err != nil {
		return fmt.Errorf("set category color: %w", err)
	}
	return nil
}

func AllCategoryColors(ctx context.Context) ([]models.CategoryColor, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT category, color FROM category_colors ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list category colors: %w", err)
	}
	defer rows.Close()

	var colors []models.CategoryColor
	for rows.Next() {
		var c models.CategoryColor
		if err := rows.Scan(&c.Category, &c.Color); err != nil {
			return nil, err
		}
		colors = append(colors, c)
	}
	return colors, rows.Err()
}
