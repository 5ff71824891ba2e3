// Command reqwrap performs reliable HTTP requests from the shell: retries
// with capped exponential backoff, proxy rotation and a fingerprint-keyed
// response cache.
package main

import (
	"os"

	"github.com/egdose/reqwrap/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
