package models

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// IsZero reports whether the location is the 0,0 placeholder.
func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lon == 0
}
