// Command sld hands the device-unlock password to the sield daemon. It lists
// the devices waiting for authentication, lets the user pick one and sends a
// single password attempt through that device's pipe.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}
