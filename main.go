// Public domain.

package main

import "github.com/soniakeys/precover/internal/pcprog"

func main() {
	pcprog.Main()
}
