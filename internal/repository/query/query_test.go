package query

import (
	"reflect"
	"testing"
)

func TestBuildNumbersPlaceholders(t *testing.T) {
	b := New().
		Where("status = ?", "active").
		Search("solar", "title", "description").
		WhereIf(false, "owner_id = ?", "skipped").
		OrderBy(Sort{Column: "created_at", Desc: true}).
		Paginate(Page{Page: 3, Limit: 10})

	sql, args := b.Build("SELECT id FROM campaigns")

	wantSQL := "SELECT id FROM campaigns WHERE status = $1 AND (title ILIKE $2 OR description ILIKE $3) ORDER BY created_at DESC LIMIT $4 OFFSET $5"
	if sql != wantSQL {
		t.Errorf("sql =\n%s\nwant\n%s", sql, wantSQL)
	}
	wantArgs := []any{"active", "%solar%", "%solar%", 10, 20}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %v, want %v", args, wantArgs)
	}

	countSQL, countArgs := b.BuildCount("campaigns")
	if countSQL != "SELECT COUNT(*) FROM campaigns WHERE status = $1 AND (title ILIKE $2 OR description ILIKE $3)" {
		t.Errorf("count sql = %s", countSQL)
	}
	if len(countArgs) != 3 {
		t.Errorf("count args = %v", countArgs)
	}
}

func TestBuildWithoutConditions(t *testing.T) {
	sql, args := New().Build("SELECT 1 FROM users")
	if sql != "SELECT 1 FROM users" || len(args) != 0 {
		t.Errorf("got %q %v", sql, args)
	}
}

func TestSearchEscapesWildcards(t *testing.T) {
	_, args := New().Search("100%_", "name").Build("SELECT 1")
	if args[0] != `%100\%\_%` {
		t.Errorf("pattern = %v", args[0])
	}
}

func TestParseSortWhitelist(t *testing.T) {
	allowed := map[string]string{"createdAt": "created_at", "amount": "amount"}

	if s := ParseSort("amount", "asc", allowed, "createdAt"); s.String() != "amount ASC" {
		t.Errorf("sort = %s", s)
	}
	if s := ParseSort("password_hash; DROP TABLE users", "desc", allowed, "createdAt"); s.String() != "created_at DESC" {
		t.Errorf("unknown sort field not rejected: %s", s)
	}
}

func TestPagination(t *testing.T) {
	p := NormalizePage(0, 500, 10, 100)
	if p.Page != 1 || p.Limit != 100 {
		t.Errorf("NormalizePage = %+v", p)
	}
	if got := NewPagination(Page{Page: 2, Limit: 10}, 21); got.TotalPages != 3 || got.Total != 21 || !got.HasNext || !got.HasPrev {
		t.Errorf("NewPagination = %+v", got)
	}
	if got := NewPagination(Page{Page: 1, Limit: 10}, 0); got.TotalPages != 0 || got.HasNext || got.HasPrev {
		t.Errorf("empty pagination = %+v", got)
	}
}

func TestWherePanicsOnArgMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on placeholder/arg mismatch")
		}
	}()
	New().Where("a = ? AND b = ?", 1)
}
