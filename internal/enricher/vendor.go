/**
 * OUI Vendor Lookup.
 *
 * Resolves the 3-byte OUI prefix of a MAC address to a manufacturer
 * name from a built-in table of the vendors that actually show up on
 * the home and small-office networks this system watches.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package enricher

import "strings"

// ouiVendors maps normalized 6-hex-digit OUI prefixes to vendor names.
// Kept deliberately small; an unmatched prefix reads as an unknown
// vendor, which the device type heuristics treat as such.
var ouiVendors = map[string]string{
	"000393": "Apple", "0017F2": "Apple", "001C42": "Apple", "001E52": "Apple",
	"001FA3": "Apple", "0021E9": "Apple", "002312": "Apple", "002332": "Apple",
	"00236C": "Apple", "0023DF": "Apple", "002436": "Apple", "002500": "Apple",
	"00254B": "Apple", "0025BC": "Apple", "002608": "Apple", "00264A": "Apple",
	"0026B0": "Apple", "0026BB": "Apple", "0050E4": "Apple", "00A040": "Apple",
	"040CCE": "Apple", "041552": "Apple", "041E64": "Apple", "042665": "Apple",

	"0002B3": "Intel", "000347": "Intel", "000423": "Intel", "000C1F": "Intel",
	"001302": "Intel", "001320": "Intel", "001372": "Intel", "0013E8": "Intel",
	"001B21": "Intel", "00215C": "Intel", "0022FB": "Intel", "002314": "Intel",

	"00000C": "Cisco", "000142": "Cisco", "000143": "Cisco", "000163": "Cisco",

	"3C5AB4": "Google", "546009": "Google", "D4F547": "Google", "F88FCA": "Google",

	// ESP8266/ESP32 modules, the usual suspects behind unnamed IoT gear
	"18FE34": "Espressif", "240AC4": "Espressif", "246F28": "Espressif",
	"24A160": "Espressif", "2C3AE8": "Espressif", "30AEA4": "Espressif",

	"B827EB": "Raspberry Pi", "DCA632": "Raspberry Pi", "E45F01": "Raspberry Pi",

	"00156D": "Ubiquiti", "002722": "Ubiquiti", "0418D6": "Ubiquiti",

	"000569": "VMware", "000C29": "VMware", "001C14": "VMware", "005056": "VMware",
}

// VendorLookup resolves MAC addresses to hardware vendors. The table
// is immutable after construction, so lookups need no locking.
type VendorLookup struct {
	ouiMap map[string]string
}

func NewVendorLookup() *VendorLookup {
	return &VendorLookup{ouiMap: ouiVendors}
}

// Lookup returns the vendor for mac's OUI prefix, or "" when the
// prefix is not in the table. Accepts colon, dash, or bare hex forms.
func (vl *VendorLookup) Lookup(mac string) string {
	norm := strings.NewReplacer(":", "", "-", "").Replace(strings.ToUpper(mac))
	if len(norm) < 6 {
		return ""
	}
	return vl.ouiMap[norm[:6]]
}
