package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/models"
	"callinsight-backend/internal/services"
)

type customerRepo interface {
	Create(ctx context.Context, c *models.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, search string, limit, offset int) ([]*models.Customer, int, error)
	Replace(ctx context.Context, c *models.Customer) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type CustomerHandler struct {
	customers customerRepo
	log       *logger.Logger
}

func NewCustomerHandler(customers customerRepo, log *logger.Logger) *CustomerHandler {
	return &CustomerHandler{customers: customers, log: log}
}

// nullIfBlank stores empty form values as null.
func nullIfBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func customerFromInput(id uuid.UUID, in models.CustomerInput) *models.Customer {
	c := &models.Customer{
		ID:           id,
		DisplayName:  nullIfBlank(in.DisplayName),
		Phone:        nullIfBlank(in.Phone),
		ContactKey:   nullIfBlank(in.ContactKey),
		Source:       nullIfBlank(in.Source),
		Grade:        nullIfBlank(in.Grade),
		EnglishLevel: nullIfBlank(in.EnglishLevel),
		Confidence:   nullIfBlank(in.Confidence),
		Notes:        nullIfBlank(in.Notes),
		LastSeenAt:   in.LastSeenAt,
	}
	if len(in.Tags) > 0 {
		c.Tags = in.Tags
	}
	return c
}

func customerErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &services.NotFoundError{Message: "Customer not found"}
	}
	return err
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.CustomerInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	c := customerFromInput(uuid.Nil, in)
	if err := h.customers.Create(r.Context(), c); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, okResp(c))
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	customers, total, err := h.customers.List(r.Context(), strings.TrimSpace(q.Get("search")), limit, offset)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	writeJSON(w, http.StatusOK, pagedResp(customers, offset/limit+1, limit, total))
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	c, err := h.customers.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.log, customerErr(err))
		return
	}
	writeJSON(w, http.StatusOK, okResp(c))
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	var in models.CustomerInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	c := customerFromInput(id, in)
	if err := h.customers.Replace(r.Context(), c); err != nil {
		handleServiceError(w, r, h.log, customerErr(err))
		return
	}
	writeJSON(w, http.StatusOK, okResp(c))
}

// Delete leaves analyses that reference the customer untouched.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if err := h.customers.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, h.log, customerErr(err))
		return
	}
	writeJSON(w, http.StatusOK, models.Response{OK: true, Message: "Customer deleted"})
}
