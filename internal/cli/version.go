package cli

import (
	"fmt"
	"io"
)

// Version is the current version of polyrefactor.
const Version = "0.1.0"

// ShowVersion writes the version line to w.
func ShowVersion(w io.Writer) {
	fmt.Fprintf(w, "polyrefactor version %s\n", Version)
}
