// The main package for the urlsec-blocklist executable.
package main

import (
	"github.com/JakeFAU/urlsec-blocklist/cmd"
)

func main() {
	cmd.Execute()
}
