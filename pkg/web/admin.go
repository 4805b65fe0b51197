package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Sternrassler/drinks-fyi/pkg/auth"
	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/prime"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

type loginView struct {
	Username string
	Next     string
	Error    string
}

type listView struct {
	Drinks []drinks.Drink
	Notice string
}

type formView struct {
	Drink    drinks.Drink
	Calories string
	Errors   map[string]string
	Action   string
	IsNew    bool
}

// safeNext only allows local redirect targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/admin"
	}
	return next
}

func (s *Server) loginForm(c echo.Context) error {
	return c.Render(http.StatusOK, "admin_login", view{
		Title: "Sign in",
		Data:  loginView{Next: safeNext(c.QueryParam("next"))},
	})
}

func (s *Server) login(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	next := safeNext(c.FormValue("next"))

	_, err := s.deps.Auth.Authenticate(c.Request().Context(), username, c.FormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.Warn().Str("user", username).Str("remote_ip", c.RealIP()).Msg("Failed admin login")
		return c.Render(http.StatusUnauthorized, "admin_login", view{
			Title: "Sign in",
			Data:  loginView{Username: username, Next: next, Error: err.Error()},
		})
	}
	if err != nil {
		return err
	}

	if err := s.deps.Auth.Login(c, username); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, next)
}

func (s *Server) logout(c echo.Context) error {
	s.deps.Auth.Logout(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) adminList(c echo.Context) error {
	ds, err := s.deps.Store.ListDrinks(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "admin_list", view{
		Title: "Admin",
		Data:  listView{Drinks: ds, Notice: c.QueryParam("notice")},
	})
}

func (s *Server) adminPrimeAll(c echo.Context) error {
	s.logger.Info().Str("user", auth.CurrentUser(c)).Msg("Full prime requested")
	s.primeAsync(prime.Change{All: true})
	return redirectNotice(c, "Re-priming all pages.")
}

func (s *Server) newDrinkForm(c echo.Context) error {
	return s.renderForm(c, http.StatusOK, formView{Action: "/admin/drinks", IsNew: true})
}

func (s *Server) editDrinkForm(c echo.Context) error {
	d, err := s.deps.Store.GetDrink(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return s.renderForm(c, http.StatusOK, formView{
		Drink:    *d,
		Calories: strconv.Itoa(d.Calories),
		Action:   "/admin/drinks/" + d.Slug,
	})
}

func (s *Server) createDrink(c echo.Context) error {
	d, fv := bindDrink(c)
	fv.Action = "/admin/drinks"
	fv.IsNew = true
	if len(fv.Errors) > 0 {
		return s.renderForm(c, http.StatusUnprocessableEntity, fv)
	}

	if err := s.deps.Store.CreateDrink(c.Request().Context(), d); err != nil {
		return s.formError(c, fv, d, err)
	}

	s.logger.Info().Str("user", auth.CurrentUser(c)).Str("slug", d.Slug).Msg("Drink created")
	s.primeAsync(prime.Change{Slugs: []string{d.Slug}, Tags: d.Tags})
	return redirectNotice(c, "Created "+d.Title+".")
}

func (s *Server) updateDrink(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")

	prev, err := s.deps.Store.GetDrink(ctx, slug)
	if err != nil {
		return err
	}

	d, fv := bindDrink(c)
	fv.Action = "/admin/drinks/" + slug
	if len(fv.Errors) > 0 {
		return s.renderForm(c, http.StatusUnprocessableEntity, fv)
	}

	if err := s.deps.Store.UpdateDrink(ctx, slug, d); err != nil {
		return s.formError(c, fv, d, err)
	}

	s.logger.Info().
		Str("user", auth.CurrentUser(c)).
		Str("slug", d.Slug).
		Str("previous_slug", slug).
		Msg("Drink updated")

	// a rename invalidates both pages, a retag both tag pages
	s.primeAsync(prime.Change{
		Slugs: []string{d.Slug, prev.Slug},
		Tags:  append(append([]string{}, d.Tags...), prev.Tags...),
	})
	return redirectNotice(c, "Saved "+d.Title+".")
}

func (s *Server) deleteDrink(c echo.Context) error {
	prev, err := s.deps.Store.DeleteDrink(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}

	s.logger.Info().Str("user", auth.CurrentUser(c)).Str("slug", prev.Slug).Msg("Drink deleted")
	s.primeAsync(prime.Change{Slugs: []string{prev.Slug}, Tags: prev.Tags})
	return redirectNotice(c, "Deleted "+prev.Title+".")
}

func redirectNotice(c echo.Context, notice string) error {
	return c.Redirect(http.StatusSeeOther, "/admin?notice="+url.QueryEscape(notice))
}

func (s *Server) renderForm(c echo.Context, status int, fv formView) error {
	title := "New drink"
	if !fv.IsNew {
		title = "Edit " + fv.Drink.Title
	}
	return c.Render(status, "admin_form", view{Title: title, Data: fv})
}

// formError re-renders the form for validation failures and slug conflicts.
func (s *Server) formError(c echo.Context, fv formView, d *drinks.Drink, err error) error {
	var verr *drinks.ValidationError
	switch {
	case errors.As(err, &verr):
		fv.Errors = verr.Fields
	case errors.Is(err, store.ErrConflict):
		fv.Errors = map[string]string{"slug": "is already used by another drink"}
	default:
		return err
	}
	fv.Drink = *d
	return s.renderForm(c, http.StatusUnprocessableEntity, fv)
}

// bindDrink reads the drink form. Calories that are not a number are reported
// as a field error; everything else is checked by the store.
func bindDrink(c echo.Context) (*drinks.Drink, formView) {
	d := &drinks.Drink{
		Title:       c.FormValue("title"),
		Slug:        c.FormValue("slug"),
		Description: c.FormValue("description"),
		Ingredients: strings.Split(strings.ReplaceAll(c.FormValue("ingredients"), "\r\n", "\n"), "\n"),
		Notes:       c.FormValue("notes"),
		Tags:        strings.Split(c.FormValue("tags"), ","),
		Image:       c.FormValue("image"),
	}

	fv := formView{Calories: strings.TrimSpace(c.FormValue("calories"))}
	if fv.Calories != "" {
		n, err := strconv.Atoi(fv.Calories)
		if err != nil {
			fv.Errors = map[string]string{"calories": "must be a whole number"}
		}
		d.Calories = n
	}

	d.Normalize()
	if len(fv.Errors) > 0 {
		var verr *drinks.ValidationError
		if errors.As(d.Validate(), &verr) {
			for k, v := range verr.Fields {
				if _, ok := fv.Errors[k]; !ok {
					fv.Errors[k] = v
				}
			}
		}
	}
	fv.Drink = *d
	return d, fv
}
