package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/learnwise/backend/core"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	perPageParam  = "per_page"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads the pagination params; invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	page.Page, _ = strconv.Atoi(ctx.QueryParam(pageParam))
	page.PerPage, _ = strconv.Atoi(ctx.QueryParam(perPageParam))
	page.Clean()
	return page
}
