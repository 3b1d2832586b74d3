// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package sqlite

import "testing"

// ExecForTest runs raw SQL against the store's database so tests can seed
// engagement rows (likes, favorites, comments) without a public write API.
func (s *ContentStore) ExecForTest(t *testing.T, query string, args ...any) {
	t.Helper()
	if _, err := s.db.Exec(query, args...); err != nil {
		t.Fatalf("seeding %q: %v", query, err)
	}
}
