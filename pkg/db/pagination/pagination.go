package pagination

import "gorm.io/gorm"

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Pagination struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type PageInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (p Pagination) Apply(stmt *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return stmt.Limit(p.Limit).Offset(p.Offset)
}

func (p Pagination) PageInfo() PageInfo {
	p = p.Normalize()
	return PageInfo{Limit: p.Limit, Offset: p.Offset}
}
