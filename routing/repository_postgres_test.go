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
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresSaveVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	version := &PolicyVersion{
		Version:     "1.0.0",
		Name:        "baseline",
		Rules:       []Rule{fastRule("r1", ScopeChannel, "support", "search", 1)},
		PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO routing_policy_versions").
		WithArgs(version.Version, version.Name, sqlmock.AnyArg(), version.PublishedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.SaveVersion(context.Background(), version); err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresSaveVersionDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec("INSERT INTO routing_policy_versions").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "routing_policy_versions_pkey"`))

	err = repo.SaveVersion(context.Background(), &PolicyVersion{
		Version: "1.0.0",
		Rules:   []Rule{fastRule("r1", ScopeChannel, "support", "search", 1)},
	})
	if !errors.Is(err, ErrPolicyVersionConflict) {
		t.Errorf("got %v, want ErrPolicyVersionConflict", err)
	}
}

func TestPostgresListVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	rules1, _ := json.Marshal([]Rule{fastRule("r1", ScopeChannel, "support", "search", 1)})
	rules2, _ := json.Marshal([]Rule{missionRule("r2", ScopePeer, "vip", "priority", 5)})

	rows := sqlmock.NewRows([]string{"version", "name", "rules", "published_at"}).
		AddRow("1.0.0", "baseline", rules1, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)).
		AddRow("1.1.0", nil, rules2, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	mock.ExpectQuery("SELECT version, name, rules, published_at").WillReturnRows(rows)

	versions, err := repo.ListVersions(context.Background())
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions))
	}
	if versions[0].Version != "1.0.0" || versions[0].Name != "baseline" {
		t.Errorf("versions[0] = %+v", versions[0])
	}
	if versions[1].Rules[0].ID != "r2" {
		t.Errorf("versions[1] rules = %+v", versions[1].Rules)
	}
}

func TestPostgresGetVersionNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery("SELECT version, name, rules, published_at").
		WithArgs("9.9.9").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "rules", "published_at"}))

	_, err = repo.GetVersion(context.Background(), "9.9.9")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("got %v, want ErrVersionNotFound", err)
	}
}
