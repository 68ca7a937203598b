// Command boundaryctl runs and administers the inline policy enforcement
// data plane.
package main

import "github.com/vectorbound/boundaryplane/cmd/boundaryctl/cmd"

func main() {
	cmd.Execute()
}
