//go:build !unix

package load

import "os"

func readFile(path string) ([]byte, func(), error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return contents, func() {}, nil
}
