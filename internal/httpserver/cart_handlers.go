package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type cartItemRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

func (s *Server) getCart(c echo.Context) error {
	id, err := identityFrom(c)
	if err != nil {
		return err
	}
	crt, err := s.Carts.GetOrCreate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, crt)
}

func (s *Server) addCartItem(c echo.Context) error {
	id, err := identityFrom(c)
	if err != nil {
		return err
	}
	var req cartItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	item, err := s.Carts.AddItem(c.Request().Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) updateCartItem(c echo.Context) error {
	id, err := identityFrom(c)
	if err != nil {
		return err
	}
	productID, err := uintParam(c, "productID")
	if err != nil {
		return err
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item, err := s.Carts.UpdateItem(c.Request().Context(), id, productID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) removeCartItem(c echo.Context) error {
	id, err := identityFrom(c)
	if err != nil {
		return err
	}
	productID, err := uintParam(c, "productID")
	if err != nil {
		return err
	}
	if err := s.Carts.RemoveItem(c.Request().Context(), id, productID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) clearCart(c echo.Context) error {
	id, err := identityFrom(c)
	if err != nil {
		return err
	}
	if err := s.Carts.Clear(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cartTotals(c echo.Context) error {
	id, err := identityFrom(c)
	if err != nil {
		return err
	}
	totals, err := s.Carts.Totals(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, totals)
}

func uintParam(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}
