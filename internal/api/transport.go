// internal/api/transport.go
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-zoo/bone"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/vsd-gateway/internal/health"
	"github.com/tamzrod/vsd-gateway/internal/storage"
)

const (
	contentType = "application/json"
	csvType     = "text/csv"

	deviceIDKey = "device_id"
	fromKey     = "from"
	toKey       = "to"
	modeKey     = "mode"
)

var errStorageDisabled = errors.New("storage is disabled")

// DeviceLister exposes the live health table.
type DeviceLister interface {
	Devices() []health.Device
}

// Reporter answers history queries.
type Reporter interface {
	Query(ctx context.Context, q storage.Query) ([]storage.Row, error)
}

type service struct {
	name    string
	devices DeviceLister
	reports Reporter
	logger  zerolog.Logger
}

// MakeHandler returns the HTTP handler of the gateway API. reports may be nil
// when storage is disabled; gatherer defaults to the global registry.
func MakeHandler(name string, devices DeviceLister, reports Reporter, gatherer prometheus.Gatherer, logger zerolog.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &service{name: name, devices: devices, reports: reports, logger: logger}

	mux := bone.New()
	mux.GetFunc("/health", s.health)
	mux.GetFunc("/devices", s.listDevices)
	mux.GetFunc("/vsd", s.listRows)
	mux.GetFunc("/vsd/export", s.exportRows)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

type healthRes struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *service) health(w http.ResponseWriter, _ *http.Request) {
	encodeResponse(w, http.StatusOK, healthRes{Status: "pass", Service: s.name})
}

func (s *service) listDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.Devices()
	if devices == nil {
		devices = []health.Device{}
	}
	encodeResponse(w, http.StatusOK, devices)
}

func (s *service) listRows(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.query(w, r)
	if !ok {
		return
	}
	encodeResponse(w, http.StatusOK, storage.GroupByLocation(rows))
}

func (s *service) exportRows(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.query(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", csvType)
	w.Header().Set("Content-Disposition", `attachment; filename="vsd_logs.csv"`)
	w.WriteHeader(http.StatusOK)

	if err := writeCSV(w, rows); err != nil {
		s.logger.Error().Err(err).Msg("csv export failed")
	}
}

// query decodes the request and runs it. It writes the error response itself.
func (s *service) query(w http.ResponseWriter, r *http.Request) ([]storage.Row, bool) {
	if s.reports == nil {
		encodeError(w, http.StatusServiceUnavailable, errStorageDisabled)
		return nil, false
	}

	q, err := decodeQuery(r)
	if err != nil {
		encodeError(w, http.StatusBadRequest, err)
		return nil, false
	}

	rows, err := s.reports.Query(r.Context(), q)
	switch {
	case errors.Is(err, storage.ErrInvalidQuery):
		encodeError(w, http.StatusBadRequest, errMissingArgs)
		return nil, false
	case err != nil:
		s.logger.Error().Err(err).Str(deviceIDKey, q.DeviceID).Msg("report query failed")
		encodeError(w, http.StatusInternalServerError, err)
		return nil, false
	}

	if rows == nil {
		rows = []storage.Row{}
	}
	return rows, true
}

var errMissingArgs = errors.New("device_id, from, and to are required")

func decodeQuery(r *http.Request) (storage.Query, error) {
	v := r.URL.Query()

	q := storage.Query{
		DeviceID: v.Get(deviceIDKey),
		From:     v.Get(fromKey),
		To:       v.Get(toKey),
	}
	if q.DeviceID == "" || q.From == "" || q.To == "" {
		return storage.Query{}, errMissingArgs
	}

	mode, err := storage.ParseMode(v.Get(modeKey))
	if err != nil {
		return storage.Query{}, err
	}
	q.Mode = mode

	return q, nil
}

var csvHeader = []string{
	"timestamp", "location", "pump", "status",
	"speed", "frequency", "current", "torque",
	"motor_power", "dc_volt", "output_volt", "kwh", "mwh",
}

func writeCSV(w http.ResponseWriter, rows []storage.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range rows {
		rec := []string{
			r.Timestamp, r.Location, r.Pump, r.Status,
			formatFloat(r.Speed), formatFloat(r.Frequency), formatFloat(r.Current), formatFloat(r.Torque),
			formatFloat(r.MotorPower), formatFloat(r.DCVolt), formatFloat(r.OutputVolt),
			formatFloat(r.KWh), formatFloat(r.MWh),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type errorRes struct {
	Message string `json:"message"`
}

func encodeError(w http.ResponseWriter, code int, err error) {
	encodeResponse(w, code, errorRes{Message: err.Error()})
}

func encodeResponse(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}
