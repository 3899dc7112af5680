package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/geocode"
	"github.com/sandeepkv93/checkin-gateway/internal/http/middleware"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
	"github.com/sandeepkv93/checkin-gateway/internal/service"
)

const acceptedMessage = "打卡成功"

type Submitter interface {
	Submit(ctx context.Context, req domain.CheckinRequest, session *domain.Session) (domain.SubmitResult, error)
	Confirm(ctx context.Context, req domain.CheckinRequest, session *domain.Session, prior domain.NeedsConfirmation) (domain.SubmitResult, error)
}

type CheckinHandler struct {
	submitter Submitter
	geocoder  service.Geocoder
}

func NewCheckinHandler(submitter Submitter, geocoder service.Geocoder) *CheckinHandler {
	return &CheckinHandler{submitter: submitter, geocoder: geocoder}
}

// submissionBody is the reply shape the check-in page understands.
type submissionBody struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data,omitempty"`
	NeedConfirm bool            `json:"needConfirm,omitempty"`
	ConfirmData json.RawMessage `json:"confirmData,omitempty"`
	Hint        string          `json:"hint,omitempty"`
	Code        json.RawMessage `json:"code,omitempty"`
	Meta        response.Meta   `json:"meta"`
}

// SubmitLocation serves both /api/submit-location and the legacy
// /api/checkin. A body with confirmed=true answers an earlier prompt.
func (h *CheckinHandler) SubmitLocation(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
			return
		}
		response.Error(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object", nil)
		return
	}
	session, _ := middleware.SessionFromContext(r.Context())

	var (
		result domain.SubmitResult
		err    error
	)
	if req.Confirmed {
		prior, priorErr := service.PriorConfirmation(req)
		if priorErr != nil {
			response.Error(w, r, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "confirmed submissions must include confirmData", nil)
			return
		}
		result, err = h.submitter.Confirm(r.Context(), req, session, prior)
	} else {
		result, err = h.submitter.Submit(r.Context(), req, session)
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCoordinates):
			response.Error(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "longitude and latitude must be valid numbers in range", nil)
		case errors.Is(err, service.ErrConfirmationRequired):
			response.Error(w, r, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "confirmed submissions must include confirmData", nil)
		default:
			response.Error(w, r, http.StatusBadGateway, "WORKFLOW_UNAVAILABLE", "check-in service is temporarily unavailable", nil)
		}
		return
	}
	writeSubmitResult(w, r, result)
}

func writeSubmitResult(w http.ResponseWriter, r *http.Request, result domain.SubmitResult) {
	meta := response.BuildMeta(r)
	switch res := result.(type) {
	case domain.Accepted:
		response.Raw(w, http.StatusOK, submissionBody{Success: true, Message: acceptedMessage, Data: res.Response, Meta: meta})
	case domain.NeedsConfirmation:
		response.Raw(w, http.StatusOK, submissionBody{
			Message:     res.Message,
			Data:        res.Response,
			NeedConfirm: true,
			ConfirmData: res.Indicator,
			Meta:        meta,
		})
	case domain.Rejected:
		response.Raw(w, res.Status, submissionBody{Message: res.Message, Hint: res.Hint, Code: res.Code, Meta: meta})
	default:
		response.Error(w, r, http.StatusBadGateway, "WORKFLOW_UNAVAILABLE", "check-in service is temporarily unavailable", nil)
	}
}

type coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocode resolves ?lat=&lng= to an address. Lookup failures still answer
// 200 with the coordinates as the address.
func (h *CheckinHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawLat, rawLng := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lng"))
	if rawLat == "" || rawLng == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lng are required", nil)
		return
	}
	lat, latErr := strconv.ParseFloat(rawLat, 64)
	lng, lngErr := strconv.ParseFloat(rawLng, 64)
	if latErr != nil || lngErr != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lng must be numbers", nil)
		return
	}
	if !service.ValidCoordinates(lng, lat) {
		response.Error(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "coordinates out of range", nil)
		return
	}

	location := coordinates{Latitude: lat, Longitude: lng}
	if h.geocoder == nil {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"address":  geocode.FallbackAddress(lng, lat),
			"location": location,
			"error":    "geocoding is not configured",
		})
		return
	}
	res, err := h.geocoder.Reverse(r.Context(), lng, lat)
	if err != nil {
		note := "geocoding service temporarily unavailable"
		if errors.Is(err, geocode.ErrLookupFailed) {
			note = "no detailed address for these coordinates"
		}
		response.JSON(w, r, http.StatusOK, map[string]any{
			"address":  geocode.FallbackAddress(lng, lat),
			"location": location,
			"error":    note,
		})
		return
	}
	address := res.Formatted
	if address == "" {
		address = res.Location.Address
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"address":  address,
		"detail":   res.Detail,
		"location": location,
	})
}
