package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Sternrassler/drinks-fyi/pkg/cache"
	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/loader"
)

// page serves a loader payload. The response carries the entry's validators
// and surrogate keys; a matching If-None-Match yields 304. JSON clients get
// the raw payload, browsers the rendered template.
func (s *Server) page(c echo.Context, key cache.Key, tmpl string, payload any, title func() string) error {
	entry, hit, err := s.deps.Loader.Cached(c.Request().Context(), key)
	if err != nil {
		return err
	}

	h := c.Response().Header()
	cache.WriteHeaders(h, entry, s.deps.Policy)
	h.Add(echo.HeaderVary, echo.HeaderAccept)
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}

	if cache.NotModified(c.Request(), entry) {
		return c.NoContent(http.StatusNotModified)
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSONBlob(http.StatusOK, entry.Data)
	}

	if err := loader.Decode(entry, payload); err != nil {
		return err
	}
	return c.Render(http.StatusOK, tmpl, view{
		Title: title(),
		Query: c.QueryParam("q"),
		Data:  payload,
	})
}

func (s *Server) home(c echo.Context) error {
	var p loader.HomePayload
	return s.page(c, loader.HomeKey(), "home", &p, func() string { return "" })
}

func (s *Server) drink(c echo.Context) error {
	var p loader.DrinkPayload
	return s.page(c, loader.DrinkKey(c.Param("slug")), "drink", &p, func() string { return p.Drink.Title })
}

func (s *Server) tags(c echo.Context) error {
	var p loader.TagsPayload
	return s.page(c, loader.TagsKey(), "tags", &p, func() string { return "Tags" })
}

func (s *Server) tag(c echo.Context) error {
	var p loader.TagPayload
	return s.page(c, loader.TagKey(drinks.NormalizeTag(c.Param("tag"))), "tag", &p, func() string { return p.Tag })
}

func (s *Server) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	var p loader.SearchPayload
	return s.page(c, loader.SearchKey(q), "search", &p, func() string { return "Search" })
}
