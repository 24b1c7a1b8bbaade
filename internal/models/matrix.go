package models

// SensorIDHeader labels the first column of a contribution matrix.
const SensorIDHeader = "SENSOR_ID"

// Sample is one oracle reading at a sensor point: radiometric channel magnitudes.
type Sample struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// ContributionMatrix holds per-sensor-point illuminance contributions.
// Rows[0] is the header row; Rows[1:] are sensor points in grid order.
// Every cell is kept as text so the file form is reproduced exactly.
type ContributionMatrix struct {
	Rows [][]string `json:"rows"`
}

// Header returns the header row.
func (m *ContributionMatrix) Header() []string {
	if len(m.Rows) == 0 {
		return nil
	}
	return m.Rows[0]
}

// PointCount returns the number of sensor point rows.
func (m *ContributionMatrix) PointCount() int {
	if len(m.Rows) == 0 {
		return 0
	}
	return len(m.Rows) - 1
}

// ColumnCount returns the number of contribution columns (excluding SENSOR_ID).
func (m *ContributionMatrix) ColumnCount() int {
	h := m.Header()
	if len(h) == 0 {
		return 0
	}
	return len(h) - 1
}

// Luminaire is one fixture placement from luminaires.txt.
type Luminaire struct {
	Index     int    `json:"index" yaml:"index"`
	Transform string `json:"transform" yaml:"transform"`
}
