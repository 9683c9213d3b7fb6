package session

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/ehr/dicom-tools/internal/anonymizer"
	"github.com/ehr/dicom-tools/internal/planner"
	"github.com/ehr/dicom-tools/internal/platform/auth"
	"github.com/ehr/dicom-tools/internal/platform/blobstore"
	"github.com/ehr/dicom-tools/internal/preset"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sessions", auth.Require(auth.PermUseSessions))
	g.POST("", h.Begin)
	g.GET("/:id", h.Get)
	g.POST("/:id/anonymize", h.Anonymize)
	g.GET("/:id/file", h.Download)
	g.DELETE("/:id", h.End)
}

func (h *Handler) Begin(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	ctx := c.Request().Context()
	s, err := h.svc.Begin(ctx, fh.Filename, f, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) Get(c echo.Context) error {
	s, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

// anonymizeBody is the JSON body of an anonymize call. Overrides use the 1.1
// field encoding; Document is a full config document with its version marker.
type anonymizeBody struct {
	Overrides map[string]any `json:"overrides"`
	Preset    string         `json:"preset"`
	Document  map[string]any `json:"document"`
}

func (h *Handler) Anonymize(c echo.Context) error {
	var body anonymizeBody
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
	}

	req, err := body.request()
	if err != nil {
		return httpError(err)
	}
	ctx := c.Request().Context()
	req.Actor = auth.UserIDFromContext(ctx)

	res, err := h.svc.Anonymize(ctx, c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (b anonymizeBody) request() (AnonymizeRequest, error) {
	req := AnonymizeRequest{Preset: b.Preset}
	if b.Overrides != nil {
		fields, err := preset.LoadFields(b.Overrides)
		if err != nil {
			return req, err
		}
		req.Overrides = planner.Overrides{
			Fields: anonymizer.Fields{
				PatientName:      fields.PatientName,
				PatientBirthDate: fields.PatientBirthDay,
				PatientSex:       fields.PatientSex,
			},
			RemoveTags: fields.RemoveTags,
		}
	}
	if b.Document != nil {
		doc, err := preset.Load(b.Document)
		if err != nil {
			return req, err
		}
		req.Document = doc
	}
	return req, nil
}

func (h *Handler) Download(c echo.Context) error {
	rc, s, err := h.svc.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+s.FileName+`"`)
	c.Response().Header().Set("ETag", `"`+s.Hash+`"`)
	return c.Stream(http.StatusOK, contentType, rc)
}

func (h *Handler) End(c echo.Context) error {
	if err := h.svc.End(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	var (
		addrErr    *anonymizer.AddressParseError
		valueErr   *anonymizer.ValueParseError
		shapeErr   *preset.ShapeError
		versionErr *preset.UnsupportedVersionError
		loadErr    *preset.LoadError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, preset.ErrPresetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidFile):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrConflictingDocuments),
		errors.Is(err, blobstore.ErrMissingFileName),
		errors.As(err, &addrErr),
		errors.As(err, &valueErr),
		errors.As(err, &shapeErr),
		errors.As(err, &versionErr),
		errors.As(err, &loadErr):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
