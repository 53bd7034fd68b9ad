package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/c010r/backyardbarpass/internal/database"
	"github.com/c010r/backyardbarpass/internal/models"
)

const eventColumns = `id, title, description, starts_at, location, active, charges_fee, fee_amount, created_at, updated_at`

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (title, description, starts_at, location, active, charges_fee, fee_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return r.db.From(ctx).QueryRowContext(ctx, query,
		event.Title,
		event.Description,
		event.StartsAt,
		event.Location,
		event.Active,
		event.ChargesFee,
		event.FeeAmount,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(r.db.From(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

func (r *EventRepository) List(ctx context.Context, query string, activeOnly bool) ([]models.Event, error) {
	var args []interface{}

	sqlQuery := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`

	if activeOnly {
		sqlQuery += " AND active"
	}

	if searchQuery := prepareSearchQuery(query); searchQuery != "" {
		args = append(args, searchQuery)
		sqlQuery += fmt.Sprintf(
			" AND to_tsvector('spanish', title || ' ' || location) @@ to_tsquery('spanish', $%d)", len(args))
	}

	sqlQuery += " ORDER BY starts_at ASC, id ASC"

	rows, err := r.db.From(ctx).QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

func scanEvent(row rowScanner) (*models.Event, error) {
	event := &models.Event{}
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.StartsAt,
		&event.Location,
		&event.Active,
		&event.ChargesFee,
		&event.FeeAmount,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// prepareSearchQuery turns free text into a prefix-matching tsquery
func prepareSearchQuery(query string) string {
	words := strings.Fields(strings.TrimSpace(query))
	if len(words) == 0 {
		return ""
	}

	var formattedWords []string
	for _, word := range words {
		word = strings.Map(func(r rune) rune {
			if strings.ContainsRune("&|!():*'\\", r) {
				return -1
			}
			return r
		}, word)
		if word != "" {
			formattedWords = append(formattedWords, word+":*")
		}
	}

	return strings.Join(formattedWords, " & ")
}
