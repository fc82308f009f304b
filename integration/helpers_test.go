package integration_test

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/onsi/gomega/gexec"

	"github.com/skycode/skypanel/config"
)

const (
	gitCommit   = "some-git-commit"
	gitVersion  = "some-git-version"
	exitSuccess = 0
	exitFailure = 1
)

var (
	onceBuild  sync.Once
	binaryPath string
)

func buildBinary() error {
	var err error
	onceBuild.Do(func() {
		binaryPath, err = gexec.Build(
			"github.com/skycode/skypanel/cmd/skypanel",
			"-ldflags",
			fmt.Sprintf("-X main.GitCommit=%s -X main.GitVersion=%s", gitCommit, gitVersion))
	})
	return err
}

// sandbox is a throwaway filesystem layout the binary is pointed at through
// SKYPANEL_* variables.
type sandbox struct {
	root    string
	baseDir string
	lockDir string
	logDir  string
	port    int
}

func newSandbox(root string) sandbox {
	return sandbox{
		root:    root,
		baseDir: filepath.Join(root, "cp"),
		lockDir: filepath.Join(root, "lock"),
		logDir:  filepath.Join(root, "log"),
		port:    8098,
	}
}

func (s sandbox) command(args ...string) *exec.Cmd {
	all := append([]string{"--config", filepath.Join(s.root, "missing.yaml")}, args...)

	cmd := exec.Command(binaryPath, all...)
	cmd.Env = append(os.Environ(),
		config.EnvPrefix+"BASE_DIR="+s.baseDir,
		config.EnvPrefix+"LOCK_DIR="+s.lockDir,
		config.EnvPrefix+"LOG_DIR="+s.logDir,
		config.EnvPrefix+"PORT="+strconv.Itoa(s.port),
		config.EnvPrefix+"LISTEN_HOST=127.0.0.1",
		config.EnvPrefix+"ALLOWED_HOST=127.0.0.1",
		config.EnvPrefix+"MAX_BACKUP_VERSIONS=2",
	)
	return cmd
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port, nil
}

func curl(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}

	return resp.StatusCode, string(data), nil
}
