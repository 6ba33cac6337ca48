// main.go
package main

import "github.com/xtechon/vatflow/cmd"

func main() {
	cmd.Execute()
}
