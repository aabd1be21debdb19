package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/linkly/admin/internal"
	"github.com/linkly/admin/internal/metrics"
	"github.com/linkly/admin/internal/registry"
)

type LinkHandler struct {
	registry   *registry.Registry
	aggregator *metrics.Aggregator
}

func NewLinkHandler(reg *registry.Registry, agg *metrics.Aggregator) *LinkHandler {
	return &LinkHandler{registry: reg, aggregator: agg}
}

// VariantList accepts both payload shapes clients send: a JSON array
// or a comma-joined string.
type VariantList []string

func (v *VariantList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*v = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(b, &joined); err != nil {
		return errors.New("variants must be a list of strings or a comma-joined string")
	}
	if strings.TrimSpace(joined) == "" {
		*v = nil
		return nil
	}
	*v = lo.Map(strings.Split(joined, ","), func(part string, _ int) string {
		return strings.TrimSpace(part)
	})
	return nil
}

type CreateLinkRequest struct {
	Title          string      `json:"title"`
	Slug           string      `json:"slug"`
	DestinationURL string      `json:"destinationUrl"`
	Variants       VariantList `json:"variants"`
}

type ListLinksResponse struct {
	Items []*internal.LinkRecord `json:"items"`
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	link, err := h.registry.Create(ctx, internal.NewLink{
		Title:          req.Title,
		Slug:           req.Slug,
		DestinationURL: req.DestinationURL,
		Variants:       req.Variants,
	})
	if err != nil {
		return domainError(err)
	}

	return c.JSON(http.StatusCreated, link)
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	links, err := h.registry.List(c.Request().Context())
	if err != nil {
		return domainError(err)
	}

	if links == nil {
		links = []*internal.LinkRecord{}
	}
	return c.JSON(http.StatusOK, ListLinksResponse{Items: links})
}

func (h *LinkHandler) GetLink(c echo.Context) error {
	link, err := h.registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, link)
}

func (h *LinkHandler) DeleteLink(c echo.Context) error {
	if err := h.registry.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *LinkHandler) GetLinkMetrics(c echo.Context) error {
	agg, err := h.aggregator.GetMetrics(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, agg)
}

func (h *LinkHandler) ResolveSlug(c echo.Context) error {
	link, err := h.registry.ResolveSlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, link)
}

// domainError maps the registry/aggregator error taxonomy onto HTTP
// statuses. Anything unrecognized is a storage failure.
func domainError(err error) error {
	var vErr *internal.ValidationError
	switch {
	case errors.As(err, &vErr):
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Reason)
	case errors.Is(err, internal.ErrSlugConflict):
		return echo.NewHTTPError(http.StatusConflict, "slug already taken")
	case errors.Is(err, internal.ErrLinkNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "link not found")
	default:
		log.Error().Err(err).Msg("storage failure")
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	}
}
