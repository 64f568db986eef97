package dns

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/openfroyo/launchpad/pkg/setup"
)

// WriteManual prints desired as a table for entry at any DNS host.
func WriteManual(w io.Writer, zone string, desired []setup.DNSRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Create these records in the %s zone:\n\n", zone)
	fmt.Fprintln(tw, "TYPE\tNAME\tVALUE")
	for _, r := range desired {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", strings.ToUpper(r.Type), FQDN(r.Name, zone), WireValue(r))
	}
	return tw.Flush()
}

// FQDN expands a zone-relative name.
func FQDN(name, zone string) string {
	if name == "@" || name == "" {
		return zone
	}
	return name + "." + zone
}
