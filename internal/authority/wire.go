package authority

import (
	"bytes"
	"encoding/json"
	"fmt"

	"barberbook/internal/models"
	"barberbook/internal/timeofday"
)

// appointmentDTO is the authority's JSON shape. Date and time arrive in
// several encodings, so they stay raw until normalized.
type appointmentDTO struct {
	ID                int64           `json:"id"`
	ClientID          int64           `json:"clientId"`
	ClientName        string          `json:"clientName"`
	BarbershopID      int64           `json:"barbershopId"`
	BarbershopName    string          `json:"barbershopName"`
	BarbershopAddress string          `json:"barbershopAddress"`
	BarbershopPhone   string          `json:"barbershopPhone"`
	BarberID          int64           `json:"barberId"`
	BarberName        string          `json:"barberName"`
	ServiceID         int64           `json:"serviceId"`
	Service           string          `json:"service"`
	Date              json.RawMessage `json:"date"`
	Time              json.RawMessage `json:"time"`
	Duration          int             `json:"duration"`
	Price             float64         `json:"price"`
	Status            string          `json:"status"`
	CancelReason      string          `json:"cancelReason,omitempty"`
}

type listEnvelope struct {
	Appointments []appointmentDTO `json:"appointments"`
}

type transitionEnvelope struct {
	Message     string          `json:"message"`
	Appointment *appointmentDTO `json:"appointment"`
}

type createRequest struct {
	ClientID     int64  `json:"clientId"`
	BarbershopID int64  `json:"barbershopId"`
	BarberID     int64  `json:"barberId"`
	ServiceID    int64  `json:"serviceId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// toModel converts a wire record. A bad time is not fatal: the raw value is
// kept and timeErr reports why it could not be normalized.
func (d appointmentDTO) toModel() (a models.Appointment, timeErr error, err error) {
	var date models.Date
	if err := json.Unmarshal(d.Date, &date); err != nil {
		return models.Appointment{}, nil, fmt.Errorf("appointment %d: %w", d.ID, err)
	}
	status, err := models.ParseStatus(d.Status)
	if err != nil {
		return models.Appointment{}, nil, fmt.Errorf("appointment %d: %w", d.ID, err)
	}

	a = models.Appointment{
		ID:              d.ID,
		ClientID:        d.ClientID,
		ClientName:      d.ClientName,
		ShopID:          d.BarbershopID,
		ShopName:        d.BarbershopName,
		ShopAddress:     d.BarbershopAddress,
		ShopPhone:       d.BarbershopPhone,
		BarberID:        d.BarberID,
		BarberName:      d.BarberName,
		ServiceID:       d.ServiceID,
		ServiceName:     d.Service,
		Date:            date,
		DurationMinutes: d.Duration,
		Price:           d.Price,
		Status:          status,
	}
	if a.DurationMinutes <= 0 {
		a.DurationMinutes = models.DefaultDurationMinutes
	}
	if status == models.StatusCancelled {
		a.CancelledReason = d.CancelReason
	}

	t, ok, terr := timeofday.DecodeAndNormalize(d.Time)
	switch {
	case terr != nil:
		a.RawTime = rawText(d.Time)
		timeErr = terr
	case ok:
		a.Time = &t
	}
	return a, timeErr, nil
}

// decodeList accepts {"appointments":[...]} or a bare array.
func decodeList(data []byte) ([]appointmentDTO, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []appointmentDTO
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var env listEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	return env.Appointments, nil
}

// decodeOne accepts {"message":..,"appointment":{..}} or a bare record.
func decodeOne(data []byte) (*appointmentDTO, error) {
	var env transitionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Appointment != nil {
		return env.Appointment, nil
	}
	var dto appointmentDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	if dto.ID == 0 {
		return nil, nil
	}
	return &dto, nil
}

func rawText(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(data))
}
