package presetstore

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/platform/auth"
	"github.com/ehr/dicom-tools/internal/preset"
	"github.com/ehr/dicom-tools/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/presets", auth.Require(auth.PermReadPresets))
	read.GET("", h.ListPresets)
	read.GET("/:name", h.GetPreset)

	write := api.Group("/presets", auth.Require(auth.PermWritePresets))
	write.PUT("/:name", h.SavePreset)
	write.DELETE("/:name", h.DeletePreset)
}

type savePresetRequest struct {
	Description string `json:"description"`
	Body        string `json:"body"`
}

func (h *Handler) SavePreset(c echo.Context) error {
	var req savePresetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Save(c.Request().Context(), c.Param("name"), req.Description, []byte(req.Body))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPreset(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPresets(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Preset{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) DeletePreset(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("name")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	var (
		loadErr    *preset.LoadError
		shapeErr   *preset.ShapeError
		versionErr *preset.UnsupportedVersionError
		valueErr   *anonymizer.ValueParseError
		addrErr    *anonymizer.AddressParseError
	)
	switch {
	case errors.Is(err, preset.ErrPresetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrEmptyBody),
		errors.As(err, &loadErr), errors.As(err, &shapeErr), errors.As(err, &versionErr),
		errors.As(err, &valueErr), errors.As(err, &addrErr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
