/**
 * GeoIP Lookup Tests.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import "testing"

func TestGeoIPService_NoDatabasesAnswersEmpty(t *testing.T) {
	service, err := NewGeoIPService("", "")
	if err != nil {
		t.Fatalf("NewGeoIPService with no databases: %v", err)
	}
	defer service.Close()

	data, err := service.Lookup("8.8.8.8")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if data == nil {
		t.Fatal("expected empty GeoData, got nil")
	}
	if data.Country != "" || data.City != "" || data.ASN != "" {
		t.Errorf("expected all fields empty without databases, got %+v", data)
	}
}

func TestGeoIPService_RejectsUnparseableIP(t *testing.T) {
	service, err := NewGeoIPService("", "")
	if err != nil {
		t.Fatalf("NewGeoIPService: %v", err)
	}
	defer service.Close()

	if _, err := service.Lookup("not-an-ip"); err == nil {
		t.Error("expected an error for an unparseable IP")
	}
}

func TestGeoIPService_MissingDatabaseFileIsAnError(t *testing.T) {
	if _, err := NewGeoIPService("/nonexistent/GeoLite2-City.mmdb", ""); err == nil {
		t.Error("expected an error for a missing database file")
	}
}
