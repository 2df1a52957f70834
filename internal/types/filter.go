package types

// Filter carries common pagination and ordering parameters for list queries.
type Filter struct {
	Limit  int    `form:"limit" json:"limit"`
	Offset int    `form:"offset" json:"offset"`
	Sort   string `form:"sort" json:"sort"`
	Order  string `form:"order" json:"order"`
}

const (
	FilterDefaultLimit = 50
	FilterMaxLimit     = 200
)

// WithDefaults clamps the filter to sane bounds.
func (f Filter) WithDefaults() Filter {
	if f.Limit <= 0 {
		f.Limit = FilterDefaultLimit
	}
	if f.Limit > FilterMaxLimit {
		f.Limit = FilterMaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Sort == "" {
		f.Sort = "created_at"
	}
	if f.Order != "asc" {
		f.Order = "desc"
	}
	return f
}
