package github

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
)

// paginate 逐页拉取，直到出现短页、达到页数上限或 visit 返回 false
func paginate[T any](ctx context.Context, c *Client, token, path string, query url.Values, maxPages int, visit func(page []T) bool) error {
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = append([]string(nil), v...)
		}
		q.Set("per_page", strconv.Itoa(PageSize))
		q.Set("page", strconv.Itoa(page))

		var items []T
		if err := c.getJSON(ctx, token, c.endpoint(path, q), &items); err != nil {
			return err
		}
		if !visit(items) {
			return nil
		}
		if len(items) < PageSize {
			return nil
		}
		if page == maxPages {
			slog.Debug("达到分页上限，停止拉取", "component", "github", "path", path, "pages", maxPages)
		}
	}
	return nil
}
