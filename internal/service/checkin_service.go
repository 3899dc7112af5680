package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/geocode"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
)

var (
	ErrInvalidCoordinates   = errors.New("invalid coordinates")
	ErrConfirmationRequired = errors.New("confirmed submission requires confirmData")
	ErrWorkflowUnavailable  = errors.New("workflow endpoint unavailable")
)

// addressPlaceholder is what the front end sends while it is still resolving
// the address.
const addressPlaceholder = "位置信息获取中..."

const maxWorkflowResponseBytes = 1 << 20

// TokenIssuer signs the payload forwarded to the workflow.
type TokenIssuer interface {
	Sign(data any) (string, time.Time, error)
	Algorithm() string
}

type CheckinGateway struct {
	signer     TokenIssuer
	geocoder   Geocoder
	httpClient *http.Client
	submitURL  string
	confirmURL string
	now        func() time.Time
}

func NewCheckinGateway(cfg config.Config, signer TokenIssuer, geocoder Geocoder, httpClient *http.Client) *CheckinGateway {
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(cfg.OutboundTimeout)
	}
	return &CheckinGateway{
		signer:     signer,
		geocoder:   geocoder,
		httpClient: httpClient,
		submitURL:  cfg.N8NEndpoint,
		confirmURL: cfg.N8NConfirmEndpoint,
		now:        time.Now,
	}
}

// PriorConfirmation rebuilds the NeedsConfirmation a client is answering.
// The indicator is whatever the workflow returned, passed back untouched.
func PriorConfirmation(req domain.CheckinRequest) (domain.NeedsConfirmation, error) {
	if !req.HasConfirmData() {
		return domain.NeedsConfirmation{}, ErrConfirmationRequired
	}
	return domain.NeedsConfirmation{Indicator: req.ConfirmData}, nil
}

// Submit relays an initial submission.
func (g *CheckinGateway) Submit(ctx context.Context, req domain.CheckinRequest, session *domain.Session) (domain.SubmitResult, error) {
	record, err := g.buildRecord(ctx, req, session)
	if err != nil {
		return nil, err
	}
	return g.relay(ctx, "initial", g.submitURL, record)
}

// Confirm relays a submission the workflow asked to confirm. It never
// yields NeedsConfirmation.
func (g *CheckinGateway) Confirm(ctx context.Context, req domain.CheckinRequest, session *domain.Session, prior domain.NeedsConfirmation) (domain.SubmitResult, error) {
	if len(bytes.TrimSpace(prior.Indicator)) == 0 {
		return nil, ErrConfirmationRequired
	}
	record, err := g.buildRecord(ctx, req, session)
	if err != nil {
		return nil, err
	}
	record.Confirmed = true
	record.ConfirmData = prior.Indicator
	return g.relay(ctx, "confirm", g.confirmURL, record)
}

func (g *CheckinGateway) buildRecord(ctx context.Context, req domain.CheckinRequest, session *domain.Session) (*domain.CheckinRecord, error) {
	lngVal, latVal := req.Coordinates()
	if !lngVal.Valid || !latVal.Valid {
		return nil, fmt.Errorf("%w: longitude and latitude are required", ErrInvalidCoordinates)
	}
	lng, lat := lngVal.Value, latVal.Value
	if !ValidCoordinates(lng, lat) {
		return nil, fmt.Errorf("%w: %v,%v out of range", ErrInvalidCoordinates, lng, lat)
	}

	loc := domain.Location{
		Address:       firstNonEmpty(cleanAddress(req.FormAddress), cleanAddress(req.FormClockAddress), cleanAddress(req.Address)),
		ProvinceCode:  firstNonEmpty(req.FormProvinceCode, req.ProvinceCode),
		ProvinceShort: firstNonEmpty(req.FormProvinceShort, req.ProvinceShort),
		CityCode:      firstNonEmpty(req.FormCityCode, req.CityCode),
		CityName:      firstNonEmpty(req.FormCityName, req.CityName),
	}
	if !loc.Complete() {
		g.fillLocation(ctx, &loc, lng, lat)
	}

	lngText := strconv.FormatFloat(lng, 'f', -1, 64)
	latText := strconv.FormatFloat(lat, 'f', -1, 64)
	coordinates := strings.TrimSpace(req.FormClockCoordinates)
	if coordinates == "" {
		coordinates = lngText + "," + latText
	}

	name := strings.TrimSpace(req.RealName)
	var userID, username string
	if session != nil {
		if name == "" {
			name = session.User.DisplayName()
		}
		userID = session.User.ID
		username = session.User.Login
	}
	if name == "" {
		name = "unknown"
	}
	kind := strings.TrimSpace(req.Type)
	if kind == "" {
		kind = "checkin"
	}

	return &domain.CheckinRecord{
		Name:          name,
		Longitude:     lngText,
		Latitude:      latText,
		Address:       loc.Address,
		Type:          kind,
		Timestamp:     g.now().UTC().Format("2006-01-02"),
		Coordinates:   coordinates,
		ClockAddress:  loc.Address,
		ProvinceCode:  loc.ProvinceCode,
		ProvinceShort: loc.ProvinceShort,
		CityCode:      loc.CityCode,
		CityName:      loc.CityName,
		UserID:        userID,
		Username:      username,
	}, nil
}

func (g *CheckinGateway) fillLocation(ctx context.Context, loc *domain.Location, lng, lat float64) {
	var (
		res *geocode.Result
		err error
	)
	if g.geocoder == nil {
		err = geocode.ErrNotConfigured
	} else {
		res, err = g.geocoder.Reverse(ctx, lng, lat)
	}
	if err != nil {
		slog.WarnContext(ctx, "reverse geocoding failed, using coordinates as address", "error", err)
		if loc.Address == "" {
			loc.Address = geocode.FallbackAddress(lng, lat)
		}
		return
	}
	loc.Fill(res.Location)
}

func (g *CheckinGateway) relay(ctx context.Context, phase, endpoint string, record *domain.CheckinRecord) (domain.SubmitResult, error) {
	ctx, span := observability.StartSpan(ctx, "checkin.relay")
	defer span.End()
	span.SetAttributes(attribute.String("checkin.phase", phase))

	fail := func(err error) (domain.SubmitResult, error) {
		observability.RecordSubmission(ctx, phase, "unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow unavailable")
		return nil, err
	}

	if strings.TrimSpace(endpoint) == "" {
		return fail(fmt.Errorf("%w: no endpoint configured for %s", ErrWorkflowUnavailable, phase))
	}
	token, _, err := g.signer.Sign(record)
	if err != nil {
		return fail(fmt.Errorf("%w: sign payload: %v", ErrWorkflowUnavailable, err))
	}
	observability.RecordTokenIssued(ctx, g.signer.Algorithm(), "submission")

	body, err := json.Marshal(record)
	if err != nil {
		return fail(fmt.Errorf("%w: encode payload: %v", ErrWorkflowUnavailable, err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrWorkflowUnavailable, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	started := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	observability.RecordWorkflowLatency(ctx, phase, time.Since(started))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrWorkflowUnavailable, err))
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkflowResponseBytes))
	if err != nil {
		return fail(fmt.Errorf("%w: read response: %v", ErrWorkflowUnavailable, err))
	}

	result := InterpretWorkflowResponse(resp.StatusCode, payload, record.Confirmed)
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.String("checkin.outcome", result.Outcome()),
	)
	observability.RecordSubmission(ctx, phase, result.Outcome())
	if rejected, ok := result.(domain.Rejected); ok {
		slog.WarnContext(ctx, "workflow rejected submission",
			"phase", phase,
			"http_status", resp.StatusCode,
			"status", rejected.Status,
			"message", rejected.Message,
		)
	}
	return result, nil
}

// InterpretWorkflowResponse maps a workflow reply onto a SubmitResult.
// Confirmation prompts are honored only for unconfirmed submissions.
func InterpretWorkflowResponse(status int, body []byte, confirmed bool) domain.SubmitResult {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		rejectedStatus := http.StatusBadGateway
		if status >= 400 {
			rejectedStatus = status
		}
		return domain.Rejected{Status: rejectedStatus, Message: "workflow returned an unreadable response"}
	}

	if !confirmed {
		if indicator, msg, ok := confirmationIndicator(fields["cxjg"]); ok {
			return domain.NeedsConfirmation{Message: msg, Indicator: indicator, Response: json.RawMessage(body)}
		}
	}

	message := firstNonEmpty(rawString(fields["message"]), rawString(fields["msg"]))
	if rawCode, ok := fields["code"]; ok && !isJSONFalsy(rawCode) {
		code, numeric := rawInt(rawCode)
		if !numeric || code != http.StatusOK {
			rejectedStatus := http.StatusBadGateway
			if numeric && code >= 400 && code <= 599 {
				rejectedStatus = code
			}
			return domain.Rejected{
				Status:  rejectedStatus,
				Message: firstNonEmpty(message, "workflow rejected the submission"),
				Hint:    rawString(fields["hint"]),
				Code:    rawCode,
			}
		}
	}

	if status < 200 || status > 299 {
		return domain.Rejected{
			Status:  status,
			Message: firstNonEmpty(message, "workflow rejected the submission"),
			Hint:    rawString(fields["hint"]),
		}
	}
	return domain.Accepted{Response: json.RawMessage(body)}
}

// confirmationIndicator accepts cxjg as an object or as a string holding
// JSON, and reports it only when it carries a non-empty msg.
func confirmationIndicator(raw json.RawMessage) (json.RawMessage, string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isJSONNull(raw) {
		return nil, "", false
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, "", false
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	var indicator struct {
		Msg json.RawMessage `json:"msg"`
	}
	if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &indicator) != nil {
		return nil, "", false
	}
	msg := rawString(indicator.Msg)
	if msg == "" {
		return nil, "", false
	}
	return raw, msg, true
}

// ValidCoordinates reports whether lng/lat are finite and within range.
func ValidCoordinates(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

func cleanAddress(v string) string {
	v = strings.TrimSpace(v)
	if v == addressPlaceholder {
		return ""
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// isJSONFalsy reports null, false, numeric zero and the empty string.
// A falsy code carries no status and is ignored.
func isJSONFalsy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, isJSONNull(raw), bytes.Equal(raw, []byte("false")), bytes.Equal(raw, []byte(`""`)):
		return true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f == 0
	}
	return false
}

// rawString renders a scalar JSON value as text; objects and arrays are
// returned as their JSON encoding.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isJSONNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func rawInt(raw json.RawMessage) (int, bool) {
	text := strings.TrimSpace(rawString(raw))
	if v, err := strconv.Atoi(text); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
