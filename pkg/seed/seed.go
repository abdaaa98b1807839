// Package seed loads a deterministic IoT dataset: devices, locations,
// thresholds, sensor readings, calculated logs and alerts. The same options
// always produce the same rows, so tests can assert exact answers.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/adapters/datasource"
)

// Options sizes the dataset. Row timestamps are spread evenly over the
// Window that ends at End.
type Options struct {
	Readings int
	Logs     int
	Alerts   int
	End      time.Time
	Window   time.Duration
	Seed     uint64
	// BatchSize is the number of rows per INSERT statement.
	BatchSize int
}

// DefaultOptions is the full demo dataset.
func DefaultOptions(end time.Time) Options {
	return Options{
		Readings:  50000,
		Logs:      1000,
		Alerts:    200,
		End:       end,
		Window:    30 * 24 * time.Hour,
		Seed:      42,
		BatchSize: 100,
	}
}

// Counts reports how many rows were inserted per table.
type Counts struct {
	Locations  int
	Devices    int
	Thresholds int
	Readings   int
	Logs       int
	Alerts     int
}

type sensorProfile struct {
	Type       string
	Unit       string
	Min, Max   float64
	WarnHigh   float64
	CritHigh   float64
	WarnLow    float64
	CritLow    float64
	HasLimits  bool
	DeviceName string
}

var sensorProfiles = []sensorProfile{
	{Type: "temperature_sensor", Unit: "celsius", Min: 15, Max: 40, WarnLow: 18, WarnHigh: 30, CritLow: 16, CritHigh: 35, HasLimits: true, DeviceName: "Temp Probe"},
	{Type: "humidity_sensor", Unit: "percent", Min: 20, Max: 90, WarnLow: 30, WarnHigh: 70, CritLow: 25, CritHigh: 80, HasLimits: true, DeviceName: "Humidity Monitor"},
	{Type: "pressure_sensor", Unit: "hPa", Min: 950, Max: 1060, WarnLow: 980, WarnHigh: 1030, CritLow: 960, CritHigh: 1045, HasLimits: true, DeviceName: "Barometer"},
	{Type: "vibration_sensor", Unit: "mm/s", Min: 0, Max: 12, WarnLow: 0, WarnHigh: 7, CritLow: 0, CritHigh: 10, HasLimits: true, DeviceName: "Vibration Meter"},
	{Type: "air_quality_sensor", Unit: "AQI", Min: 0, Max: 200, WarnLow: 0, WarnHigh: 100, CritLow: 0, CritHigh: 150, HasLimits: true, DeviceName: "Air Quality Station"},
	{Type: "power_meter", Unit: "kW", Min: 0, Max: 500, WarnLow: 10, WarnHigh: 400, CritLow: 5, CritHigh: 450, HasLimits: true, DeviceName: "Power Meter"},
	{Type: "flow_sensor", Unit: "L/min", Min: 0, Max: 100, WarnLow: 5, WarnHigh: 80, CritLow: 2, CritHigh: 90, HasLimits: true, DeviceName: "Flow Meter"},
	{Type: "light_sensor", Unit: "lux", Min: 0, Max: 2000, WarnLow: 100, WarnHigh: 1500, CritLow: 50, CritHigh: 1800, HasLimits: true, DeviceName: "Light Sensor"},
	{Type: "motion_sensor", Unit: "events", Min: 0, Max: 50, HasLimits: true, WarnHigh: 40, CritHigh: 45, DeviceName: "Motion Detector"},
	{Type: "sound_sensor", Unit: "dB", Min: 30, Max: 110, DeviceName: "Sound Level Meter"},
}

type location struct {
	ID, Name, Building, Zone, Description string
	Floor                                 int
}

var locations = []location{
	{ID: "LOC001", Name: "Factory Floor A", Building: "Main Plant", Floor: 1, Zone: "production", Description: "Primary assembly line"},
	{ID: "LOC002", Name: "Warehouse B", Building: "Storage", Floor: 1, Zone: "storage", Description: "Finished goods storage"},
	{ID: "LOC003", Name: "Office Wing C", Building: "Admin", Floor: 2, Zone: "office", Description: "Administrative offices"},
	{ID: "LOC004", Name: "Lab Section D", Building: "R&D", Floor: 3, Zone: "lab", Description: "Quality control lab"},
	{ID: "LOC005", Name: "Loading Dock E", Building: "Storage", Floor: 0, Zone: "logistics", Description: "Inbound and outbound shipping"},
}

var (
	logTypes     = []string{"daily_average", "hourly_max", "anomaly_detection", "efficiency_calc"}
	alertTypes   = []string{"threshold_exceeded", "sensor_offline", "data_quality_low", "anomaly_detected"}
	severities   = []string{"low", "medium", "high", "critical"}
	deviceStatus = []string{"online", "online", "online", "maintenance", "offline"}
)

// DeviceID returns the id of the i-th seeded device (0-based).
func DeviceID(i int) string { return fmt.Sprintf("DEV%03d", i%len(sensorProfiles)+1) }

// LocationID returns the location a device is installed at.
func LocationID(device int) string { return locations[device%len(locations)].ID }

// Load inserts the dataset through exec. The tables must exist and be empty.
func Load(ctx context.Context, exec datasource.QueryExecutor, opts Options, logger *zap.Logger) (*Counts, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}
	opts.End = opts.End.UTC()
	start := opts.End.Add(-opts.Window)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	logger = logger.Named("seed")

	w := &writer{ctx: ctx, exec: exec, batch: opts.BatchSize}
	counts := &Counts{}

	for _, l := range locations {
		w.add("LocRef", []string{"location_id", "location_name", "building", "floor", "zone", "coordinates", "description"},
			l.ID, l.Name, l.Building, l.Floor, l.Zone, fmt.Sprintf(`{"x": %d, "y": %d}`, l.Floor*10, len(l.Zone)), l.Description)
	}
	counts.Locations = len(locations)

	for i, p := range sensorProfiles {
		w.add("DevMap", []string{"device_id", "device_name", "location", "device_type", "install_date", "status", "config_params", "last_seen"},
			DeviceID(i), fmt.Sprintf("%s %d", p.DeviceName, i+1), LocationID(i), p.Type,
			start.AddDate(0, -6, i), deviceStatus[i%len(deviceStatus)],
			fmt.Sprintf(`{"sample_rate_s": %d, "unit": %q}`, 30+i*5, p.Unit),
			opts.End.Add(-time.Duration(i)*time.Minute))
	}
	counts.Devices = len(sensorProfiles)

	for _, p := range sensorProfiles {
		if !p.HasLimits {
			continue
		}
		w.add("ThreshSet", []string{"sensor_type", "device_id", "min_value", "max_value", "warning_low", "warning_high", "critical_low", "critical_high", "active", "created_at"},
			p.Type, nil, p.Min, p.WarnHigh, p.WarnLow, p.WarnHigh, p.CritLow, p.CritHigh, true, start)
		counts.Thresholds++
	}
	if err := w.flush(); err != nil {
		return nil, err
	}

	readingCols := []string{"device_id", "sensor_type", "value", "unit", "timestamp", "quality_flag", "location_id", "created_at"}
	for i := 0; i < opts.Readings; i++ {
		dev := i % len(sensorProfiles)
		p := sensorProfiles[dev]
		ts := spread(start, opts.Window, i, opts.Readings)
		quality := 1
		if i%50 == 49 {
			quality = 0
		}
		w.add("RepData", readingCols,
			DeviceID(dev), p.Type, round2(p.Min+rng.Float64()*(p.Max-p.Min)), p.Unit, ts, quality, LocationID(dev), ts)
		if err := w.err; err != nil {
			return nil, err
		}
	}
	counts.Readings = opts.Readings

	logCols := []string{"log_type", "source_signal_ids", "calculated_value", "calculation_method", "timestamp", "status", "metadata", "created_at"}
	for i := 0; i < opts.Logs; i++ {
		lt := logTypes[i%len(logTypes)]
		ts := spread(start, opts.Window, i, opts.Logs)
		status := "active"
		if i%7 == 6 {
			status = "archived"
		}
		w.add("RepItem", logCols,
			lt, fmt.Sprintf("[%d,%d,%d]", i*3+1, i*3+2, i*3+3), round2(rng.Float64()*100), lt+"_v1",
			ts, status, fmt.Sprintf(`{"device_id": %q}`, DeviceID(i)), ts)
	}
	counts.Logs = opts.Logs

	alertCols := []string{"device_id", "sensor_type", "alert_type", "threshold_value", "actual_value", "severity", "timestamp", "acknowledged", "ack_timestamp", "ack_user"}
	for i := 0; i < opts.Alerts; i++ {
		dev := (i * 3) % len(sensorProfiles)
		p := sensorProfiles[dev]
		ts := spread(start, opts.Window, i, opts.Alerts)
		threshold := p.CritHigh
		if threshold == 0 {
			threshold = p.Max
		}
		acked := i%3 == 0
		var ackAt, ackUser any
		if acked {
			ackAt = ts.Add(15 * time.Minute)
			ackUser = "operator" + fmt.Sprint(i%4+1)
		}
		w.add("AlertLog", alertCols,
			DeviceID(dev), p.Type, alertTypes[i%len(alertTypes)], threshold,
			round2(threshold+rng.Float64()*10), severities[i%len(severities)], ts, acked, ackAt, ackUser)
	}
	counts.Alerts = opts.Alerts

	if err := w.flush(); err != nil {
		return nil, err
	}
	logger.Info("Seeded IoT dataset",
		zap.Int("readings", counts.Readings),
		zap.Int("logs", counts.Logs),
		zap.Int("alerts", counts.Alerts),
		zap.Time("end", opts.End))
	return counts, nil
}

// spread places row i of n evenly over [start, start+window).
func spread(start time.Time, window time.Duration, i, n int) time.Time {
	if n <= 0 {
		return start
	}
	step := window / time.Duration(n)
	return start.Add(time.Duration(i) * step).Truncate(time.Second)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// writer batches rows for one table at a time into multi-row INSERTs.
type writer struct {
	ctx     context.Context
	exec    datasource.QueryExecutor
	batch   int
	table   string
	columns []string
	rows    [][]any
	err     error
}

func (w *writer) add(table string, columns []string, values ...any) {
	if w.err != nil {
		return
	}
	if table != w.table {
		if w.err = w.flush(); w.err != nil {
			return
		}
		w.table, w.columns = table, columns
	}
	w.rows = append(w.rows, values)
	if len(w.rows) >= w.batch {
		w.err = w.flush()
	}
}

func (w *writer) flush() error {
	if w.err != nil {
		return w.err
	}
	if len(w.rows) == 0 {
		return nil
	}

	quoted := make([]string, len(w.columns))
	for i, c := range w.columns {
		quoted[i] = w.exec.QuoteIdentifier(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", w.exec.QuoteIdentifier(w.table), strings.Join(quoted, ", "))
	params := make([]any, 0, len(w.rows)*len(w.columns))
	for r, row := range w.rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c, v := range row {
			if c > 0 {
				b.WriteString(", ")
			}
			params = append(params, v)
			fmt.Fprintf(&b, "$%d", len(params))
		}
		b.WriteString(")")
	}

	if _, err := w.exec.ExecuteWithParams(w.ctx, b.String(), params); err != nil {
		return fmt.Errorf("seed %s: %w", w.table, err)
	}
	w.rows = w.rows[:0]
	return nil
}
