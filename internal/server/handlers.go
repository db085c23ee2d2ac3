package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/engine"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

// maxBody bounds the size of a query request.
const maxBody = 1 << 20

// QueryRequest is the body of POST /sparql. JSON and YAML are accepted.
// The federation may also be given as the "federation" query parameter.
type QueryRequest struct {
	Federation string           `yaml:"federation" json:"federation"`
	Query      queryir.Document `yaml:"query" json:"query"`
}

// QueryHandler answers POST /sparql with a result envelope.
//
// Query failures are reported inside the envelope: unknown federations
// answer 404, malformed requests and queries 400, everything else 200.
func QueryHandler(eng QueryEngine) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "read request body").SetInternal(err)
		}
		var req QueryRequest
		if err := yaml.Unmarshal(body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, &engine.Envelope{Error: "decode request: " + err.Error()})
		}
		if fed := c.QueryParam("federation"); fed != "" {
			req.Federation = fed
		}
		if req.Federation == "" {
			return c.JSON(http.StatusBadRequest, &engine.Envelope{Error: "federation is required"})
		}
		q, err := req.Query.Build()
		if err != nil {
			return c.JSON(http.StatusBadRequest, &engine.Envelope{Error: err.Error()})
		}

		ctx := c.Request().Context()
		var env *engine.Envelope
		if session := c.Request().Header.Get(SessionHeader); session != "" {
			env, err = eng.RunSession(ctx, session, req.Federation, q)
		} else {
			env, err = eng.Query(ctx, req.Federation, q)
		}
		if env != nil && env.QueryID != "" {
			c.Response().Header().Set("X-Query-ID", env.QueryID)
		}
		return c.JSON(statusOf(err), env)
	}
}

func statusOf(err error) int {
	switch engine.CodeOf(err) {
	case engine.ErrCodeUnknownFederation:
		return http.StatusNotFound
	case engine.ErrCodeInvalidQuery, engine.ErrCodeUnserviceable:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

// MoleculesHandler answers GET /federations/:id/molecules.
func MoleculesHandler(catalogs engine.CatalogSource, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		cat, err := catalogs.Get(c.Request().Context(), c.Param(param))
		if errors.Is(err, catalog.ErrUnknownFederation) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "load catalog").SetInternal(err)
		}
		return c.JSON(http.StatusOK, moleculesOf(cat))
	}
}

// HealthHandler answers GET /healthz.
func HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": ir.EngineVersion,
		})
	}
}
