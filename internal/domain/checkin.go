package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexFloat decodes a JSON number or a numeric string. Null, absent and empty
// string values leave Valid false.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexFloat{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = FlexFloat{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*f = FlexFloat{Value: v, Valid: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

// CheckinRequest is the body accepted by the submission endpoints. Both the
// form-prefixed and the plain field names are honored.
type CheckinRequest struct {
	FormLng   FlexFloat `json:"form-lng"`
	FormLat   FlexFloat `json:"form-lat"`
	Longitude FlexFloat `json:"longitude"`
	Latitude  FlexFloat `json:"latitude"`

	FormClockCoordinates string `json:"form-clock-coordinates"`
	FormAddress          string `json:"form-address"`
	FormClockAddress     string `json:"form-clock-address"`
	Address              string `json:"address"`

	FormProvinceCode  string `json:"form-province-code"`
	ProvinceCode      string `json:"CLOCK_PROVINCE_CODE"`
	FormProvinceShort string `json:"form-province-short"`
	ProvinceShort     string `json:"CLOCK_PROVINCE_SHORT"`
	FormCityCode      string `json:"form-city-code"`
	CityCode          string `json:"CLOCK_CITY_CODE"`
	FormCityName      string `json:"form-city-name"`
	CityName          string `json:"CLOCK_CITY_NAME"`

	RealName    string          `json:"realName"`
	Type        string          `json:"type"`
	Confirmed   bool            `json:"confirmed"`
	ConfirmData json.RawMessage `json:"confirmData,omitempty"`
}

// Coordinates returns longitude and latitude, preferring the form fields.
func (r CheckinRequest) Coordinates() (lng, lat FlexFloat) {
	lng, lat = r.FormLng, r.FormLat
	if !lng.Valid || lng.Value == 0 {
		lng = r.Longitude
	}
	if !lat.Valid || lat.Value == 0 {
		lat = r.Latitude
	}
	return lng, lat
}

// HasConfirmData reports whether a non-null confirmation payload was sent.
func (r CheckinRequest) HasConfirmData() bool {
	trimmed := bytes.TrimSpace(r.ConfirmData)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// CheckinRecord is the payload relayed to the workflow engine. Field names
// follow the workflow's contract.
type CheckinRecord struct {
	Name          string          `json:"name"`
	Longitude     string          `json:"longitude"`
	Latitude      string          `json:"latitude"`
	Address       string          `json:"address"`
	Type          string          `json:"type"`
	Timestamp     string          `json:"timestamp"`
	Coordinates   string          `json:"CLOCK_COORDINATES"`
	ClockAddress  string          `json:"CLOCK_ADDRESS"`
	ProvinceCode  string          `json:"CLOCK_PROVINCE_CODE"`
	ProvinceShort string          `json:"CLOCK_PROVINCE_SHORT"`
	CityCode      string          `json:"CLOCK_CITY_CODE"`
	CityName      string          `json:"CLOCK_CITY_NAME"`
	UserID        string          `json:"userId"`
	Username      string          `json:"username"`
	Confirmed     bool            `json:"confirmed,omitempty"`
	ConfirmData   json.RawMessage `json:"confirmData,omitempty"`
}

// Location holds the address and region fields of a submission.
type Location struct {
	Address       string `json:"address"`
	ProvinceCode  string `json:"provinceCode"`
	ProvinceShort string `json:"provinceShort"`
	CityCode      string `json:"cityCode"`
	CityName      string `json:"cityName"`
}

// Complete reports whether no field needs geocoding.
func (l Location) Complete() bool {
	return l.Address != "" && l.ProvinceCode != "" && l.ProvinceShort != "" && l.CityCode != "" && l.CityName != ""
}

// Fill copies fields from other only where l is empty.
func (l *Location) Fill(other Location) {
	if l.Address == "" {
		l.Address = other.Address
	}
	if l.ProvinceCode == "" {
		l.ProvinceCode = other.ProvinceCode
	}
	if l.ProvinceShort == "" {
		l.ProvinceShort = other.ProvinceShort
	}
	if l.CityCode == "" {
		l.CityCode = other.CityCode
	}
	if l.CityName == "" {
		l.CityName = other.CityName
	}
}
