package models

// RestTable is a physical table in the dining room.
type RestTable struct {
	TableNumber int        `json:"table_number" yaml:"table_number"`
	Capacity    int        `json:"capacity" yaml:"capacity"`
	Note        string     `json:"note,omitempty" yaml:"note"`
	Bookings    []*Booking `json:"bookings,omitempty" yaml:"-"`
}
