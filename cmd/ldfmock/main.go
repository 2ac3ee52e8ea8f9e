// Command ldfmock runs mock servers replaying recorded LDF responses and
// locates the fixtures they read.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
