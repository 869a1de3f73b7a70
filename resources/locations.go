package resources

import (
	"fmt"

	"igclient/client"
)

// Locations serves place lookups.
type Locations struct {
	f *Facade
}

// Info fetches a location by numeric id.
func (l *Locations) Info(pk int64) (Location, error) {
	result, err := l.f.session.PrivateRequest(fmt.Sprintf("locations/%d/location_info/", pk))
	if err != nil {
		if _, ok := err.(*client.ClientNotFoundError); ok {
			return Location{}, &client.LocationNotFound{ClientError: client.ClientError{Message: "location not found"}}
		}
		return Location{}, err
	}
	var loc Location
	if err := decodeInto(result, &loc); err != nil {
		return Location{}, fmt.Errorf("decode location: %w", err)
	}
	if loc.Pk == 0 {
		loc.Pk = pk
	}
	return loc, nil
}
