package main

import "github.com/frahmantamala/taxfree-console/cmd"

func main() {
	cmd.Execute()
}
