/**
 * GeoIP Lookup.
 *
 * Resolves destination IPs to country/city/ASN from local MaxMind
 * GeoLite2 databases. Either database file is optional; a lookup
 * returns whatever the configured readers can answer.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoData is the geolocation attached to a flow at finalization.
type GeoData struct {
	Country string
	City    string
	ASN     string
	Org     string
}

// GeoIPService answers IP-to-location queries from mmdb files opened
// at startup. The readers are safe for concurrent lookups.
type GeoIPService struct {
	cityDB *geoip2.Reader
	asnDB  *geoip2.Reader
}

// NewGeoIPService opens whichever of the two database paths are
// non-empty. A missing or unreadable file is an error; a deployment
// without GeoIP simply passes two empty paths and gets a service that
// answers every lookup with empty fields.
func NewGeoIPService(cityPath, asnPath string) (*GeoIPService, error) {
	s := &GeoIPService{}

	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("open city db: %w", err)
		}
		s.cityDB = db
	}

	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			if s.cityDB != nil {
				s.cityDB.Close()
			}
			return nil, fmt.Errorf("open asn db: %w", err)
		}
		s.asnDB = db
	}

	return s, nil
}

func (s *GeoIPService) Close() {
	if s.cityDB != nil {
		s.cityDB.Close()
	}
	if s.asnDB != nil {
		s.asnDB.Close()
	}
}

// Lookup resolves ipStr against the open databases. Fields the
// databases cannot answer stay empty; only an unparseable IP is an
// error.
func (s *GeoIPService) Lookup(ipStr string) (*GeoData, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	data := &GeoData{}

	if s.cityDB != nil {
		if record, err := s.cityDB.City(ip); err == nil {
			data.Country = record.Country.IsoCode
			// Fall back to the first subdivision when the record has no
			// city name, which GeoLite2 frequently omits.
			if len(record.Subdivisions) > 0 {
				data.City = record.Subdivisions[0].Names["en"]
			}
			if name := record.City.Names["en"]; name != "" {
				data.City = name
			}
		}
	}

	if s.asnDB != nil {
		if record, err := s.asnDB.ASN(ip); err == nil {
			data.ASN = fmt.Sprintf("AS%d", record.AutonomousSystemNumber)
			data.Org = record.AutonomousSystemOrganization
		}
	}

	return data, nil
}
