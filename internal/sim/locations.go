package sim

import "github.com/ukydev/ambulance-sim/internal/models"

// Stations are London hospitals with ambulance bays. They spread the fleet
// at startup and double as known-good relocation and fallback points.
var Stations = []models.Location{
	{Lat: 51.4988, Lon: -0.1189}, // St Thomas'
	{Lat: 51.5185, Lon: -0.0590}, // Royal London
	{Lat: 51.4682, Lon: -0.0938}, // King's College
	{Lat: 51.5170, Lon: -0.1749}, // St Mary's
	{Lat: 51.5246, Lon: -0.1357}, // University College
	{Lat: 51.4873, Lon: -0.2208}, // Charing Cross
	{Lat: 51.5468, Lon: -0.0452}, // Homerton
	{Lat: 51.5659, Lon: -0.1386}, // Whittington
	{Lat: 51.4528, Lon: -0.0184}, // Lewisham
	{Lat: 51.5755, Lon: -0.3198}, // Northwick Park
}
