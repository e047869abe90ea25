// Package main provides the hydraspecter command line tool. It manages a
// pool of persistent Chrome profiles: importing logged-in sessions from
// the user's everyday browser, opening pooled browser contexts on them,
// and keeping session state synchronized across the pool.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
