/**
 * Capture Preflight.
 *
 * Checks that packet capture will work on this host before sentineld
 * is deployed: libpcap is loadable, interfaces are visible, and a
 * default capture target can be chosen. Run it once after installing
 * on a new box (or after forgetting setcap on the binary).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"fmt"
	"os"

	"github.com/google/gopacket/pcap"

	"github.com/kleaSCM/sentinel/internal/capture"
)

func main() {
	fmt.Println("sentinel capture preflight")
	fmt.Println("libpcap:", pcap.Version())

	interfaces, err := capture.ListInterfaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot enumerate capture devices: %v\n", err)
		fmt.Fprintln(os.Stderr, "likely causes:")
		fmt.Fprintln(os.Stderr, "  - libpcap is not installed")
		fmt.Fprintln(os.Stderr, "  - missing CAP_NET_RAW (run as root or setcap the binary)")
		os.Exit(1)
	}

	fmt.Printf("found %d capture device(s):\n", len(interfaces))
	for _, ni := range interfaces {
		status := "down"
		if ni.IsUp {
			status = "up"
		}
		if ni.IsLoopback {
			status += ", loopback"
		}
		fmt.Printf("  %-12s [%s]", ni.Name, status)
		for _, addr := range ni.Addresses {
			fmt.Printf(" %s", addr)
		}
		fmt.Println()
	}

	def, err := capture.GetDefaultInterface()
	if err != nil {
		fmt.Fprintln(os.Stderr, "no usable capture interface; sentineld would fail to start")
		os.Exit(1)
	}
	fmt.Println("default capture interface:", def.Name)
}
