// Package query builds the filtered, sorted and paginated SELECTs used by the
// list and report endpoints. Conditions are written with "?" placeholders and
// renumbered to PostgreSQL "$n" in the order they are added.
package query

import (
	"fmt"
	"strings"
)

// Page 分页参数，Page 从 1 开始
type Page struct {
	Page  int
	Limit int
}

// NormalizePage 修正非法的分页参数
func NormalizePage(page, limit, defaultLimit, maxLimit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Page{Page: page, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination 列表接口返回的分页信息
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	Total       int  `json:"total"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{
		CurrentPage: p.Page,
		TotalPages:  pages,
		Total:       total,
		HasNext:     p.Page < pages,
		HasPrev:     p.Page > 1,
	}
}

// Sort 排序列必须来自白名单
type Sort struct {
	Column string
	Desc   bool
}

// ParseSort 把请求中的 sortBy/order 映射到白名单中的列，未知字段回退到 fallback
func ParseSort(field, order string, allowed map[string]string, fallback string) Sort {
	column, ok := allowed[field]
	if !ok {
		column = allowed[fallback]
	}
	return Sort{Column: column, Desc: !strings.EqualFold(order, "asc")}
}

func (s Sort) String() string {
	if s.Column == "" {
		return ""
	}
	if s.Desc {
		return s.Column + " DESC"
	}
	return s.Column + " ASC"
}

type Builder struct {
	conds []string
	args  []any
	sort  Sort
	page  *Page
}

func New() *Builder {
	return &Builder{}
}

// Where 添加一个 AND 条件
func (b *Builder) Where(cond string, args ...any) *Builder {
	if strings.Count(cond, "?") != len(args) {
		panic(fmt.Sprintf("query: %d placeholders but %d args in %q", strings.Count(cond, "?"), len(args), cond))
	}
	var sb strings.Builder
	n := len(b.args)
	for _, r := range cond {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	b.conds = append(b.conds, sb.String())
	b.args = append(b.args, args...)
	return b
}

// WhereIf 仅当 ok 为 true 时添加条件
func (b *Builder) WhereIf(ok bool, cond string, args ...any) *Builder {
	if ok {
		return b.Where(cond, args...)
	}
	return b
}

// Search 在多个列上做不区分大小写的模糊匹配
func (b *Builder) Search(term string, columns ...string) *Builder {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return b
	}
	pattern := "%" + escapeLike(term) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE ?"
		args[i] = pattern
	}
	return b.Where("("+strings.Join(parts, " OR ")+")", args...)
}

func (b *Builder) OrderBy(s Sort) *Builder {
	b.sort = s
	return b
}

func (b *Builder) Paginate(p Page) *Builder {
	b.page = &p
	return b
}

// WhereClause 返回 " WHERE ..."，没有条件时为空串
func (b *Builder) WhereClause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// Args 返回条件参数的副本
func (b *Builder) Args() []any {
	return append([]any(nil), b.args...)
}

// Build 拼接 base + WHERE + ORDER BY + LIMIT/OFFSET
func (b *Builder) Build(base string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString(b.WhereClause())
	args := b.Args()
	if order := b.sort.String(); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	if b.page != nil {
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, b.page.Limit, b.page.Offset())
	}
	return sb.String(), args
}

// BuildCount 生成与 Build 条件一致的 COUNT 查询
func (b *Builder) BuildCount(from string) (string, []any) {
	return "SELECT COUNT(*) FROM " + from + b.WhereClause(), b.Args()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
