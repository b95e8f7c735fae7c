// Copyright 2026 Corridor
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Repository mirrors published policy versions into durable storage shared
// by all nodes, so a fresh node can reconstruct the version history.
type Repository interface {
	// SaveVersion persists one published version. Saving a version string
	// that already exists returns ErrPolicyVersionConflict.
	SaveVersion(ctx context.Context, version *PolicyVersion) error

	// ListVersions returns all persisted versions ordered by publish time,
	// oldest first.
	ListVersions(ctx context.Context) ([]PolicyVersion, error)

	// GetVersion retrieves one version by identifier.
	GetVersion(ctx context.Context, version string) (*PolicyVersion, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SaveVersion persists one published policy version.
func (r *PostgresRepository) SaveVersion(ctx context.Context, version *PolicyVersion) error {
	rules, err := json.Marshal(version.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	query := `
		INSERT INTO routing_policy_versions (version, name, rules, published_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.Version, version.Name, rules, version.PublishedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fmt.Errorf("%w: %q already persisted", ErrPolicyVersionConflict, version.Version)
		}
		return fmt.Errorf("failed to save policy version: %w", err)
	}

	return nil
}

// ListVersions returns all persisted versions, oldest first.
func (r *PostgresRepository) ListVersions(ctx context.Context) ([]PolicyVersion, error) {
	query := `
		SELECT version, name, rules, published_at
		FROM routing_policy_versions
		ORDER BY published_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	defer rows.Close()

	var versions []PolicyVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policy versions: %w", err)
	}

	return versions, nil
}

// GetVersion retrieves one version by identifier.
func (r *PostgresRepository) GetVersion(ctx context.Context, version string) (*PolicyVersion, error) {
	query := `
		SELECT version, name, rules, published_at
		FROM routing_policy_versions
		WHERE version = $1
	`

	row := r.db.QueryRowContext(ctx, query, version)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*PolicyVersion, error) {
	var v PolicyVersion
	var name sql.NullString
	var rules []byte

	if err := row.Scan(&v.Version, &name, &rules, &v.PublishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan policy version: %w", err)
	}
	v.Name = name.String

	if err := json.Unmarshal(rules, &v.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return &v, nil
}
