package models

import "time"

// CurrentData is the latest position and engine state of a vehicle.
type CurrentData struct {
	Timestamp         time.Time `json:"timestamp"`
	Location          Location  `json:"location"`
	Heading           float64   `json:"heading"`             // degrees, [0,360)
	Speed             float64   `json:"speed"`               // km/h
	Odometer          float64   `json:"odometer"`            // km
	FuelLevel         float64   `json:"fuel_level"`          // percent
	FuelConsumption   float64   `json:"fuel_consumption"`    // L/100km, instantaneous
	EngineOilTemp     float64   `json:"engine_oil_temp"`     // °C
	EngineCoolantTemp float64   `json:"engine_coolant_temp"` // °C
	EmergencyLights   bool      `json:"emergency_lights"`
}

// TelemetryData is one historical sample.
type TelemetryData struct {
	Timestamp         time.Time `json:"timestamp"`
	Odometer          float64   `json:"odometer"`
	FuelLevel         float64   `json:"fuel_level"`
	FuelConsumption   float64   `json:"fuel_consumption"`
	EngineOilTemp     float64   `json:"engine_oil_temp"`
	EngineCoolantTemp float64   `json:"engine_coolant_temp"`
	EmergencyLights   bool      `json:"emergency_lights"`
}

// Sample extracts the historical part of the current data.
func (c CurrentData) Sample() TelemetryData {
	return TelemetryData{
		Timestamp:         c.Timestamp,
		Odometer:          c.Odometer,
		FuelLevel:         c.FuelLevel,
		FuelConsumption:   c.FuelConsumption,
		EngineOilTemp:     c.EngineOilTemp,
		EngineCoolantTemp: c.EngineCoolantTemp,
		EmergencyLights:   c.EmergencyLights,
	}
}
