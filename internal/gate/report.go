package gate

import (
	"fmt"
	"io"

	"github.com/VikingOwl91/pip-warden/internal/trust"
)

const reportSeparator = "-------------------------------"

const mismatchHeader = "THE FOLLOWING PACKAGES DIDN'T MATCH THE HASHES SPECIFIED IN THE " +
	"REQUIREMENTS FILE. If you have updated the package versions, update the " +
	"hashes. If not, freak out, because someone has tampered with the packages."

const missingHeader = "The following packages had no hashes specified in the requirements " +
	"file, which leaves them open to tampering. Vet these packages to your " +
	"satisfaction, then add these \"sha256\" lines like so:"

// writeReport prints the verdicts that blocked a batch, in requirement
// order: mismatch blocks first, then ready-to-paste pin lines for the
// requirements that had no annotation. The second line of each mismatch
// block pads so both hashes start in the same column.
func writeReport(w io.Writer, results []trust.Result, versions map[string]string) {
	var mismatches, missing []trust.Result
	for _, r := range results {
		switch r.Verdict {
		case trust.Mismatched:
			mismatches = append(mismatches, r)
		case trust.Unexpected:
			missing = append(missing, r)
		}
	}
	if len(mismatches) == 0 && len(missing) == 0 {
		return
	}

	fmt.Fprintln(w)

	if len(mismatches) > 0 {
		fmt.Fprintf(w, "%s\n\n", mismatchHeader)
		for _, r := range mismatches {
			fmt.Fprintf(w, "    %s: expected %s\n", r.Name, r.Expected)
			fmt.Fprintf(w, "    %*s       got %s\n", len(r.Name), "", r.Got)
		}
		fmt.Fprintln(w)
	}

	if len(missing) > 0 {
		fmt.Fprintf(w, "%s\n\n", missingHeader)
		for _, r := range missing {
			fmt.Fprintf(w, "# sha256: %s\n", r.Got)
			fmt.Fprintf(w, "%s==%s\n\n", r.Name, versions[r.Name])
		}
	}

	fmt.Fprintln(w, reportSeparator)
	fmt.Fprintln(w, "Not proceeding to installation.")
}

// writePolicyReport prints the requirements the admission policy turned
// away. Nothing was downloaded for these.
func writePolicyReport(w io.Writer, denied []denial) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The following packages were denied by the admission policy:")
	fmt.Fprintln(w)
	for _, d := range denied {
		fmt.Fprintf(w, "    %s (%s:%d): rule %s\n", d.record.Name, d.record.File, d.record.Line, d.rule)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, reportSeparator)
	fmt.Fprintln(w, "Not proceeding to installation.")
}
