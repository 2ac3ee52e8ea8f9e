package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	ldfmock "github.com/William9923/go-ldfmock"
	"github.com/spf13/cobra"
)

var locateFlags struct {
	mockFolder string
	method     string
	body       string
	bodyFile   string
	suffix     string
}

var locateCmd = &cobra.Command{
	Use:   "locate URI",
	Short: "Print the fixture path a request is answered from",
	Example: `  ldfmock locate --mock-folder https://fixtures.example/set1 http://ex.org/resource
  ldfmock locate --method POST --body 'query=ASK{}' http://ex.org/sparql`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := locateFlags.body
		if locateFlags.bodyFile != "" {
			var (
				raw []byte
				err error
			)
			if locateFlags.bodyFile == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(locateFlags.bodyFile)
			}
			if err != nil {
				return err
			}
			body = string(raw)
		}

		locator := ldfmock.Locator{Suffix: locateFlags.suffix}
		method := strings.ToUpper(locateFlags.method)
		fmt.Fprintln(cmd.OutOrStdout(), locator.Locate(locateFlags.mockFolder, args[0], method, body))
		return nil
	},
}

func init() {
	locateCmd.Flags().StringVar(&locateFlags.mockFolder, "mock-folder", "", "base URI or directory of the fixtures")
	locateCmd.Flags().StringVarP(&locateFlags.method, "method", "X", http.MethodGet, "request method")
	locateCmd.Flags().StringVarP(&locateFlags.body, "body", "d", "", "request body, hashed for POST")
	locateCmd.Flags().StringVar(&locateFlags.bodyFile, "body-file", "", "read the request body from a file, - for stdin")
	locateCmd.Flags().StringVar(&locateFlags.suffix, "suffix", "", "fixture file suffix")
}
