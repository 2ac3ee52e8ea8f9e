package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ldfmock "github.com/William9923/go-ldfmock"
)

const fixture = `# Query: null
# Hashed IRI: http://ex.org/resource
# Content-type: text/turtle
@prefix ex: <http://ex.org/> . ex:s ex:p ex:o .`

func main() {
	ctx := context.Background()

	mockFolder, err := os.MkdirTemp("", "ldfmock-example-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(mockFolder)

	path := ldfmock.Locate(mockFolder, "http://ex.org/resource", "GET", "")
	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		panic(err)
	}
	fmt.Println("fixture:", filepath.Base(path))

	factory, err := ldfmock.NewMockerFactory(ldfmock.Config{StartPort: 4000})
	if err != nil {
		panic(err)
	}
	mocker, err := factory.StartMocker(ctx, &ldfmock.TestCase{MockFolder: mockFolder})
	if err != nil {
		panic(err)
	}
	defer mocker.TearDownServer(ctx)

	resp, err := mocker.HTTPClient().Get("http://ex.org/resource")
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(err)
	}

	fmt.Println(resp.StatusCode, resp.Header.Get("Content-Type"))
	fmt.Println(string(body))
}
