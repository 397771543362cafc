package userapp

import (
	"net/http"
	"net/mail"
	"strconv"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/sdk/order"
	"github.com/jpcouto/vitrine/business/sdk/page"
	"github.com/jpcouto/vitrine/business/types/name"
)

type queryParams struct {
	Page    string
	Rows    string
	OrderBy string
	ID      string
	Name    string
	Email   string
	Enabled string
}

func parseQueryParams(r *http.Request) (queryParams, error) {
	values := r.URL.Query()

	filter := queryParams{
		Page:    values.Get("page"),
		Rows:    values.Get("rows"),
		OrderBy: values.Get("orderBy"),
		ID:      values.Get("user_id"),
		Name:    values.Get("name"),
		Email:   values.Get("email"),
		Enabled: values.Get("enabled"),
	}

	return filter, nil
}

func parseFilter(qp queryParams) (userbus.QueryFilter, error) {
	var filter userbus.QueryFilter

	if qp.ID != "" {
		id, err := uuid.Parse(qp.ID)
		if err != nil {
			return userbus.QueryFilter{}, errs.NewFieldsError("user_id", err)
		}
		filter.ID = &id
	}

	if qp.Name != "" {
		nme, err := name.Parse(qp.Name)
		if err != nil {
			return userbus.QueryFilter{}, errs.NewFieldsError("name", err)
		}
		filter.Name = &nme
	}

	if qp.Email != "" {
		addr, err := mail.ParseAddress(qp.Email)
		if err != nil {
			return userbus.QueryFilter{}, errs.NewFieldsError("email", err)
		}
		filter.Email = addr
	}

	if qp.Enabled != "" {
		enabled, err := strconv.ParseBool(qp.Enabled)
		if err != nil {
			return userbus.QueryFilter{}, errs.NewFieldsError("enabled", err)
		}
		filter.Enabled = &enabled
	}

	return filter, nil
}

var orderByFields = map[string]string{
	"user_id": userbus.OrderByID,
	"name":    userbus.OrderByName,
	"email":   userbus.OrderByEmail,
	"role":    userbus.OrderByRole,
	"enabled": userbus.OrderByEnabled,
}

func parseOrder(qp queryParams) (order.By, error) {
	orderBy, err := order.Parse(orderByFields, qp.OrderBy, userbus.DefaultOrderBy)
	if err != nil {
		return order.By{}, errs.NewFieldsError("order", err)
	}

	return orderBy, nil
}

func parsePage(qp queryParams) (page.Page, error) {
	pg, err := page.Parse(qp.Page, qp.Rows)
	if err != nil {
		return page.Page{}, errs.NewFieldsError("page", err)
	}

	return pg, nil
}
