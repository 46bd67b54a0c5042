package domain

const (
	// DateLayout and TimeLayout are the wire formats for the recorded
	// calendar date and wall-clock time of a reading.
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Reading is one sensor measurement, stamped at ingest time with the
// date and time-of-day in the reference timezone. ID is set only when
// the reading was persisted.
type Reading struct {
	ID           *int64  `json:"id"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	Pressure     float64 `json:"pressure"`
	DateRecorded string  `json:"date_recorded"`
	TimeRecorded string  `json:"time_recorded"`
	SensorID     string  `json:"sensor_id"`
	ClientIP     string  `json:"client_ip"`
}
