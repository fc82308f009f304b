package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/test"
	. "github.com/onsi/gomega"
	"github.com/sclevine/spec"
	"github.com/sclevine/spec/report"
)

func TestUnitConfigStore(t *testing.T) {
	spec.Run(t, "Testing the config store", testStore, spec.Report(report.Terminal{}))
}

func testStore(t *testing.T, when spec.G, it spec.S) {
	var (
		dir     string
		subject *config.FileIO
	)

	it.Before(func() {
		RegisterTestingT(t)
		dir = t.TempDir()
		subject = config.New().WithConfigPath(filepath.Join(dir, "etc", "config.yaml"))
	})

	when("Read()", func() {
		it("parses a YAML config file", func() {
			data, err := test.FileToBytes("config.yaml")
			Expect(err).NotTo(HaveOccurred())
			Expect(os.MkdirAll(filepath.Dir(subject.Path()), 0o755)).To(Succeed())
			Expect(os.WriteFile(subject.Path(), data, 0o644)).To(Succeed())

			cfg, err := subject.Read()

			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Port).To(Equal(8099))
			Expect(cfg.BaseDir).To(Equal("/srv/www/panel/"))
			Expect(cfg.MaxBackupVersions).To(Equal(3))
			Expect(cfg.LockDir).To(Equal("/run/lock/panel/"))
			Expect(cfg.LogLevel).To(BeEmpty())
		})

		it("fails when the file is missing", func() {
			_, err := subject.Read()
			Expect(err).To(MatchError(os.ErrNotExist))
		})

		it("fails on malformed YAML", func() {
			Expect(os.MkdirAll(filepath.Dir(subject.Path()), 0o755)).To(Succeed())
			Expect(os.WriteFile(subject.Path(), []byte("port: [unterminated"), 0o644)).To(Succeed())

			_, err := subject.Read()
			Expect(err).To(HaveOccurred())
		})
	})

	when("Write()", func() {
		it("creates the parent directory and round trips the values", func() {
			cfg := subject.ReadDefaults()
			cfg.Port = 9100

			Expect(subject.Write(cfg)).To(Succeed())

			read, err := subject.Read()
			Expect(err).NotTo(HaveOccurred())
			Expect(read).To(Equal(cfg))
		})
	})

	when("Validate()", func() {
		var cfg config.Config

		it.Before(func() {
			cfg = subject.ReadDefaults()
		})

		it("accepts the defaults", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		it("rejects an out of range port", func() {
			cfg.Port = 70000
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("port")))
		})

		it("rejects a zero retention cap", func() {
			cfg.MaxBackupVersions = 0
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("max_backup_versions")))
		})

		it("rejects an empty lock directory", func() {
			cfg.LockDir = ""
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("lock_dir")))
		})

		it("rejects a relative log directory but allows an empty one", func() {
			cfg.LogDir = "logs"
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("log_dir")))

			cfg.LogDir = ""
			Expect(cfg.Validate()).To(Succeed())
		})
	})
}
