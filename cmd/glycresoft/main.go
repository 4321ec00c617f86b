// glycresoft - Glycopeptide identification from tandem mass spectra
package main

import (
	"fmt"
	"os"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/cmd/glycresoft/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
