package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/harrylevesque/hivebff/internal/config"
	"github.com/harrylevesque/hivebff/internal/files"
)

func main() {
	out := flag.String("out", config.Default().MasterKeyFile, "where to write the hex encoded master key")
	flag.Parse()

	if _, err := files.WriteMasterKey(*out); err != nil {
		if errors.Is(err, files.ErrKeyExists) {
			fmt.Fprintf(os.Stderr, "Error: %s already exists. Refusing to overwrite.\n", *out)
		} else {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *out, err)
		}
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", *out)
	fmt.Printf("Set MASTER_KEY_FILE=%s or copy its contents into MASTER_KEY_HEX.\n", *out)
}
