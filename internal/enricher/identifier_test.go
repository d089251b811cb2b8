/**
 * Enhanced Identification Tests.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import (
	"testing"

	"github.com/kleaSCM/sentinel/internal/models"
)

func TestEnhancedIdentifier_TrackDNSQueryRoundTrip(t *testing.T) {
	id := NewEnhancedIdentifier(nil)
	id.TrackDNSQuery("example.com", "93.184.216.34")

	domain, ok := id.GetDomainForIP("93.184.216.34")
	if !ok || domain != "example.com" {
		t.Fatalf("expected example.com, got %q ok=%v", domain, ok)
	}
}

func TestEnhancedIdentifier_DetectApplicationDPIByPort(t *testing.T) {
	id := NewEnhancedIdentifier(nil)
	flow := &models.Flow{Key: models.FlowKey{DstPort: 22}}

	if app := id.DetectApplicationDPI(flow, nil); app != "SSH" {
		t.Fatalf("expected SSH, got %q", app)
	}
}

func TestApplicationIdentifier_BannerTiers(t *testing.T) {
	ai := NewApplicationIdentifier()

	// Signature tier matches on content regardless of port.
	if app := ai.FingerprintBanner(2222, []byte("SSH-2.0-OpenSSH_9.6")); app != "SSH" {
		t.Errorf("expected SSH from signature, got %q", app)
	}
	// Banner tier resolves a 220 greeting through the port table.
	if app := ai.FingerprintBanner(21, []byte("220 ProFTPD Server ready")); app != "FTP" {
		t.Errorf("expected FTP from banner, got %q", app)
	}
	if app := ai.FingerprintBanner(9999, []byte("hello")); app != "" {
		t.Errorf("expected no match on an unknown port/payload, got %q", app)
	}
}

func TestEnhancedIdentifier_FingerprintServiceFallsBackToDNS(t *testing.T) {
	id := NewEnhancedIdentifier(nil)
	id.TrackDNSQuery("mail.example.com", "198.51.100.7")

	// No packet payload, unlisted port: only the DNS association is left.
	if svc := id.FingerprintService(nil, "198.51.100.7", 9999); svc != "mail.example.com" {
		t.Errorf("expected DNS fallback to mail.example.com, got %q", svc)
	}
}
