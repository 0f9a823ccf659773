package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"barberbook/internal/domain"
	"barberbook/internal/lifecycle"
	"barberbook/internal/models"
	"barberbook/internal/store"
	"barberbook/internal/timeofday"
)

// appointmentView is one appointment as the dashboards render it.
type appointmentView struct {
	models.Appointment
	DisplayTime string `json:"display_time"`
	Group       string `json:"group"`
}

type bookRequest struct {
	ClientID  int64               `json:"client_id"`
	ShopID    int64               `json:"shop_id"`
	BarberID  int64               `json:"barber_id"`
	ServiceID int64               `json:"service_id"`
	Date      models.Date         `json:"date"`
	Time      timeofday.TimeOfDay `json:"time"`
}

type transitionRequest struct {
	ActorID int64                `json:"actor_id"`
	Kind    string               `json:"kind"`
	Date    models.Date          `json:"date"`
	Time    *timeofday.TimeOfDay `json:"time"`
	Reason  string               `json:"reason"`
}

func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	actor, err := parseActor(q.Get("actor_id"), q.Get("kind"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filter := store.FilterAll
	if raw := strings.TrimSpace(q.Get("filter")); raw != "" {
		if filter, err = store.ParseFilter(raw); err != nil {
			writeServiceError(w, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
			return
		}
	}

	now := s.now()
	list, err := s.service.Filtered(r.Context(), actor, filter, now)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// группы считаются в часовом поясе расписания, как и фильтр
	local := now.In(s.service.Location())
	views := make([]appointmentView, 0, len(list))
	for _, a := range list {
		views = append(views, appointmentView{
			Appointment: a,
			DisplayTime: a.DisplayTime(),
			Group:       string(store.Group(a, local)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actor":        actor.Key(),
		"filter":       filter,
		"appointments": views,
		"count":        len(views),
	})
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var body bookRequest
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := s.service.Book(r.Context(), domain.CreateRequest{
		ClientID:  body.ClientID,
		ShopID:    body.ShopID,
		BarberID:  body.BarberID,
		ServiceID: body.ServiceID,
		Date:      body.Date,
		Time:      body.Time,
	}, s.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeServiceError(w, fmt.Errorf("%w: invalid appointment id %q", domain.ErrInvalidRequest, r.PathValue("id")))
		return
	}
	ev, err := lifecycle.ParseEvent(r.PathValue("event"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var body transitionRequest
	if err := decodeBody(r, &body); err != nil {
		writeServiceError(w, err)
		return
	}
	actor, err := parseActor(strconv.FormatInt(body.ActorID, 10), body.Kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	payload := lifecycle.Payload{
		Date:   body.Date,
		Time:   body.Time,
		Reason: strings.TrimSpace(body.Reason),
		ByShop: actor.Kind == store.KindShop,
	}
	updated, err := s.service.RequestTransition(r.Context(), actor, id, ev, payload, s.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	shopID, err := strconv.ParseInt(strings.TrimSpace(q.Get("shop_id")), 10, 64)
	if err != nil {
		writeServiceError(w, fmt.Errorf("%w: shop_id is required", domain.ErrInvalidRequest))
		return
	}
	date, err := models.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		writeServiceError(w, fmt.Errorf("%w: invalid date format; expected YYYY-MM-DD", domain.ErrInvalidRequest))
		return
	}

	slots, err := s.service.GetAvailableSlots(r.Context(), shopID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shop_id": shopID,
		"date":    date,
		"slots":   slots,
	})
}

func parseActor(rawID, rawKind string) (store.Actor, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return store.Actor{}, fmt.Errorf("%w: actor_id is required", domain.ErrInvalidRequest)
	}
	kind, err := store.ParseKind(rawKind)
	if err != nil {
		return store.Actor{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return store.Actor{ID: id, Kind: kind}, nil
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
