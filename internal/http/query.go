package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/go-chi/chi/v5"
)

type PageResponse[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page must be a positive integer")
	}
	return page, nil
}

func statusParam(r *http.Request) (*domain.Status, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	s := domain.Status(raw)
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown status %q", raw)
	}
	return &s, nil
}

// timeParam accepts RFC 3339 timestamps or plain dates.
func timeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD", name)
}

func int64Param(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer", name)
	}
	return &v, nil
}

func idParam(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func orderFilter(r *http.Request) (domain.OrderFilter, error) {
	var (
		f   domain.OrderFilter
		err error
	)
	if f.Status, err = statusParam(r); err != nil {
		return f, err
	}
	if f.UserID, err = int64Param(r, "userId"); err != nil {
		return f, err
	}
	if f.From, err = timeParam(r, "from"); err != nil {
		return f, err
	}
	f.To, err = timeParam(r, "to")
	return f, err
}

func invoiceFilter(r *http.Request) (domain.InvoiceFilter, error) {
	var (
		f   domain.InvoiceFilter
		err error
	)
	if f.Status, err = statusParam(r); err != nil {
		return f, err
	}
	if f.From, err = timeParam(r, "from"); err != nil {
		return f, err
	}
	f.To, err = timeParam(r, "to")
	return f, err
}
