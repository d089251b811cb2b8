/**
 * Storage Interface.
 *
 * Defines the contract for persistence layers, allowing the application
 * to support multiple storage backends interchangeably. SQLite is the
 * only implementation today (see sqlite.go).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

import (
	"context"

	"github.com/kleaSCM/sentinel/internal/models"
)

// Storage is the persistence contract every core service depends on.
// Reads may proceed concurrently; writes are serialized by the
// implementation.
type Storage interface {
	Close() error
	Migrate(ctx context.Context) error

	SaveDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]*models.Device, error)
	SearchDevices(ctx context.Context, nameLike string) ([]*models.Device, error)

	SaveFlow(ctx context.Context, flow *models.Flow) error
	SaveFlowsBatch(ctx context.Context, flows []*models.Flow) error
	GetFlow(ctx context.Context, id string) (*models.Flow, error)
	GetFlows(ctx context.Context, f FlowFilter) ([]*models.Flow, error)

	SaveThreat(ctx context.Context, threat *models.Threat) error
	GetThreat(ctx context.Context, id string) (*models.Threat, error)
	GetThreats(ctx context.Context, f ThreatFilter) ([]*models.Threat, error)
	DismissThreat(ctx context.Context, id string) error

	CleanupOldData(ctx context.Context, days int) (flowsDeleted, threatsDeleted int64, err error)
	GetDatabaseStats(ctx context.Context) (Stats, error)
}

// MaxPageLimit caps any single read; larger requests are clamped, not
// rejected.
const MaxPageLimit = 1000

// Page bounds a result set. Limit == 0 yields an empty result; callers
// that want "everything" pass MaxPageLimit and paginate.
type Page struct {
	Limit  int
	Offset int
}

// clamp normalizes a page to its documented bounds: limit in
// [0, MaxPageLimit], offset >= 0.
func (p Page) clamp() Page {
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TimeRange bounds a query by flow/threat timestamp. A zero value on
// either end means unbounded on that side.
type TimeRange struct {
	Start int64 // unix millis
	End   int64 // unix millis
}

// FlowFilter is the composable filter space get_flows supports. Every
// field is optional; zero value means "don't filter on this".
type FlowFilter struct {
	Page

	DeviceID          string
	Status            models.FlowStatus
	Protocol          string
	Time              TimeRange
	SrcIP             string
	DstIP             string
	ThreatLevel       models.ThreatLevel
	MinBytes          uint64
	Country           string
	City              string
	Application       string
	MinRTTMillis      float64
	MaxRTTMillis      float64
	MaxJitterMillis   float64
	MaxRetransmissions uint64
	SNIContains       string
	DomainContains    string
	ConnectionState   models.ConnectionState
}

// ThreatFilter is the composable filter space for threat reads.
type ThreatFilter struct {
	Page

	DeviceID  string
	Type      models.ThreatType
	Severity  models.ThreatLevel
	Dismissed *bool
	Time      TimeRange
}

// Stats summarizes the database for operator/health surfaces.
type Stats struct {
	DeviceCount int64
	FlowCount   int64
	ThreatCount int64
	DBSizeBytes int64
}
