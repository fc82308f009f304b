package test

import (
	"os"
	"path/filepath"
	"runtime"

	. "github.com/onsi/gomega"
)

// FileToBytes reads a fixture from test/data relative to this source file.
func FileToBytes(fileName string) ([]byte, error) {
	fixture, err := DataPath(fileName)
	if err != nil {
		return nil, err
	}

	Expect(fixture).To(BeAnExistingFile())

	return os.ReadFile(fixture)
}

func DataPath(fileName string) (string, error) {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Abs(filepath.Join(filepath.Dir(thisFile), "data", fileName))
}

// WriteFile creates path with content and mode, making parents as needed.
func WriteFile(path, content string, mode os.FileMode) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), mode)).To(Succeed())
}
