/**
 * Threat Model.
 *
 * Represents a single detected threat, produced by the threat scorer
 * and attached to the device/flow that triggered it.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

import "time"

type ThreatType string

const (
	ThreatTypeMalware      ThreatType = "malware"
	ThreatTypeExfiltration ThreatType = "exfiltration"
	ThreatTypeScan         ThreatType = "scan"
	ThreatTypeBotnet       ThreatType = "botnet"
	ThreatTypePhishing     ThreatType = "phishing"
	ThreatTypeAnomaly      ThreatType = "anomaly"
)

// Threat is one scored detection, raised when a finalized flow crosses
// a severity threshold. Threats are immutable once stored; an operator
// may dismiss one but the record itself is never rewritten.
type Threat struct {
	ID        string
	Timestamp time.Time

	Type     ThreatType
	Severity ThreatLevel

	DeviceID string
	FlowID   string

	Description    string
	Recommendation string

	Dismissed bool
}
