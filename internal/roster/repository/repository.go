// Package repository provides read-only access to the roster tables
// owned by the external assignment CRUD service: the offer catalog, the
// operator roster, and the live assignments. This service never writes
// to that schema.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"offerboard_backend/internal/offers/domain"
)

// Operator is one trafficking account from the roster.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Repository reads the roster tables.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a roster repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListArticles returns the tracked catalog articles, sorted.
func (r *Repository) ListArticles(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT article FROM offers WHERE archived_at IS NULL ORDER BY article`)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []string
	for rows.Next() {
		var article string
		if err := rows.Scan(&article); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// ListOperators returns the operator roster, sorted by id.
func (r *Repository) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM operators WHERE archived_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var operators []Operator
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.ID, &op.Name); err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		operators = append(operators, op)
	}
	return operators, rows.Err()
}

// ListAssignments returns the live operator assignments.
func (r *Repository) ListAssignments(ctx context.Context) ([]domain.OperatorAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, operator_id, article, source_ids, created_at
		 FROM operator_assignments
		 WHERE archived_at IS NULL
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.OperatorAssignment
	for rows.Next() {
		var a domain.OperatorAssignment
		if err := rows.Scan(&a.ID, &a.OperatorID, &a.Article, &a.SourceIDs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Status = domain.AssignmentReady
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
