package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/config"
)

var _ = Describe("Load", func() {
	var tmpDir string

	writeConfig := func(body string) string {
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		for _, key := range []string{
			config.EnvAPIKey, config.EnvModel, config.EnvSystemPrompt,
			config.EnvTemperature, config.EnvBaseURL,
		} {
			GinkgoT().Setenv(key, "")
		}
		GinkgoT().Setenv("XDG_CONFIG_HOME", tmpDir)
	})

	It("returns defaults when the default file is absent", func() {
		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(chat.DefaultConfig()))
	})

	It("fails when an explicit file is absent", func() {
		_, err := config.Load(filepath.Join(tmpDir, "missing.toml"))
		Expect(err).To(HaveOccurred())
	})

	It("reads every field from the file", func() {
		path := writeConfig(`
api_key = "sk-file"
base_url = "http://localhost:9999/v1"
dialect = "chat"
model = "gpt-4o"
system_prompt = "be kind"
temperature = 0.0
context_budget = 2000
max_history_items = 20
request_timeout = "30s"
language = "German"
`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.APIKey).To(Equal("sk-file"))
		Expect(cfg.BaseURL).To(Equal("http://localhost:9999/v1"))
		Expect(cfg.Dialect).To(Equal(chat.DialectChat))
		Expect(cfg.Model).To(Equal("gpt-4o"))
		Expect(cfg.SystemPrompt).To(Equal("be kind"))
		Expect(cfg.Temperature).To(Equal(0.0))
		Expect(cfg.ContextBudget).To(Equal(2000))
		Expect(cfg.MaxHistoryItems).To(Equal(20))
		Expect(cfg.RequestTimeout).To(Equal(30 * time.Second))
		Expect(cfg.Language).To(Equal(chat.German))
	})

	It("finds the file under XDG_CONFIG_HOME", func() {
		Expect(os.MkdirAll(filepath.Join(tmpDir, "parley"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(tmpDir, "parley", "config.toml"), []byte(`model = "xdg-model"`), 0o600)).To(Succeed())

		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Model).To(Equal("xdg-model"))
	})

	It("treats blank strings as unset", func() {
		path := writeConfig(`model = "   "`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Model).To(Equal(chat.DefaultModel))
	})

	It("lets the environment override the file", func() {
		path := writeConfig(`
api_key = "sk-file"
model = "file-model"
temperature = 0.9
`)
		GinkgoT().Setenv(config.EnvAPIKey, "  sk-env  ")
		GinkgoT().Setenv(config.EnvModel, "env-model")
		GinkgoT().Setenv(config.EnvTemperature, "0.1")

		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.APIKey).To(Equal("sk-env"))
		Expect(cfg.Model).To(Equal("env-model"))
		Expect(cfg.Temperature).To(Equal(0.1))
	})

	It("ignores an unparseable temperature", func() {
		GinkgoT().Setenv(config.EnvTemperature, "warm")

		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Temperature).To(Equal(chat.DefaultTemperature))
	})

	DescribeTable("rejects invalid values",
		func(body string) {
			_, err := config.Load(writeConfig(body))
			Expect(err).To(HaveOccurred())
		},
		Entry("dialect", `dialect = "soap"`),
		Entry("timeout", `request_timeout = "soon"`),
		Entry("language", `language = "klingon"`),
		Entry("syntax", `model = `),
	)
})
