package vehicle

import "errors"

// ErrNilVehicle is returned when Save or Populate is given no vehicle.
var ErrNilVehicle = errors.New("vehicle: nil vehicle")
