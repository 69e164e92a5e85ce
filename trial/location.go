package trial

import (
	"math"
	"sort"
	"strings"
)

// TrialLocation is one study site.
type TrialLocation struct {
	Status        string    `json:"status,omitempty"`
	Facility      *Facility `json:"facility,omitempty"`
	Contact       *Contact  `json:"contact,omitempty"`
	ContactBackup *Contact  `json:"contact_backup,omitempty"`
	Investigator  *Contact  `json:"investigator,omitempty"`
	Geo           *GeoPoint `json:"geodata,omitempty"`
}

// Facility names the site and its postal address.
type Facility struct {
	Name    string   `json:"name,omitempty"`
	Address *Address `json:"address,omitempty"`
}

type Address struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Contact is a person attached to a site or trial.
type Contact struct {
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Degrees    string `json:"degrees,omitempty"`
	Role       string `json:"role,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PhoneExt   string `json:"phone_ext,omitempty"`
}

// GeoPoint is a geocoded site position.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Formatted string  `json:"formatted,omitempty"`
}

// City returns the geocoder's formatted place name.
func (l *TrialLocation) City() string {
	if l.Geo == nil {
		return ""
	}
	return l.Geo.Formatted
}

func reachable(c *Contact) bool {
	return c != nil && (c.Email != "" || c.Phone != "")
}

// BestContact picks the site contact, its backup, or the trial-wide
// contact, the first one that carries an email or phone.
func (l *TrialLocation) BestContact(overall *Contact) *Contact {
	if reachable(l.Contact) {
		return l.Contact
	}
	if reachable(l.ContactBackup) {
		return l.ContactBackup
	}
	return overall
}

// AddressParts renders the site contact for display, falling back to
// the backup contact.
func (l *TrialLocation) AddressParts() []string {
	if l.Contact != nil {
		return ContactParts(l.Contact)
	}
	if l.ContactBackup != nil {
		return ContactParts(l.ContactBackup)
	}
	return nil
}

// ContactParts composes display lines from a contact: name with
// degrees, then email, then phone with its extension.
func ContactParts(c *Contact) []string {
	if c == nil || *c == (Contact{}) {
		return []string{"No contact"}
	}

	var nameparts []string
	for _, part := range []string{c.FirstName, c.MiddleName, c.LastName} {
		if part != "" {
			nameparts = append(nameparts, part)
		}
	}
	name := "Unknown contact"
	if len(nameparts) > 0 {
		name = strings.Join(nameparts, " ")
	}
	if c.Degrees != "" {
		name += ", " + c.Degrees
	}

	parts := []string{name}
	if c.Email != "" {
		parts = append(parts, c.Email)
	}
	if c.Phone != "" {
		phone := c.Phone
		if c.PhoneExt != "" {
			phone += " (" + c.PhoneExt + ")"
		}
		parts = append(parts, phone)
	}
	return parts
}

// KilometersFrom computes the haversine distance between the site and
// a query point. Sites without geodata measure from latitude and
// longitude zero.
func (l *TrialLocation) KilometersFrom(lat, lng float64) float64 {
	var lat2, lng2 float64
	if l.Geo != nil {
		lat2, lng2 = l.Geo.Latitude, l.Geo.Longitude
	}
	return KilometersBetween(lat, lng, lat2, lng2)
}

// KilometersBetween returns the haversine distance in kilometers
// between two points.
func KilometersBetween(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

// LocationDistance pairs a site with its distance from a query point.
type LocationDistance struct {
	Location   *TrialLocation
	Kilometers float64
}

func openStatus(status string) bool {
	switch status {
	case "Recruiting", "Not yet recruiting", "Enrolling by invitation":
		return true
	}
	return false
}

// LocationsClosestTo ranks the trial's sites by distance from the
// given point. With limit > 0 only the closest sites are returned;
// with openOnly set, sites not recruiting are skipped.
func (t *Trial) LocationsClosestTo(lat, lng float64, limit int, openOnly bool) []LocationDistance {
	var closest []LocationDistance
	for _, loc := range t.Locations {
		if openOnly && !openStatus(loc.Status) {
			continue
		}
		closest = append(closest, LocationDistance{loc, loc.KilometersFrom(lat, lng)})
	}

	sort.Slice(closest, func(i, j int) bool {
		return closest[i].Kilometers < closest[j].Kilometers
	})
	if limit > 0 && len(closest) > limit {
		closest = closest[:limit]
	}
	return closest
}
