package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/velmart/backend/internal/service/product"
)

func (s *Server) listProducts(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	// Customers only see the active catalog; admins may ask for everything.
	activeOnly := !(isAdmin(c) && c.QueryParam("all") == "true")

	products, err := s.Products.List(c.Request().Context(), activeOnly, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, products)
}

func (s *Server) getProduct(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	p, err := s.Products.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) createProduct(c echo.Context) error {
	var in product.CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := s.Products.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) updateProduct(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	var in product.UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := s.Products.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) getStock(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	level, err := s.Inventory.GetLevel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"product_id": id, "quantity": level})
}

func (s *Server) setStock(c echo.Context) error {
	id, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Quantity int    `json:"quantity"`
		Reason   string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.Inventory.SetLevel(c.Request().Context(), id, req.Quantity, req.Reason); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"product_id": id, "quantity": req.Quantity})
}
