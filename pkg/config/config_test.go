package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmem/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads all config fields", func() {
			data := `version = 0

[storage]
backend = "postgres"
sqlite_path = "/tmp/chatmem.db"
postgres_dsn = "postgres://localhost/chatmem"
libsql_url = "libsql://chatmem.turso.io"

[server]
listen = ":9000"

[generation]
provider = "ollama"
target = "http://localhost:11434"
model = "llama3.2"
api_key = "secret"
max_tokens = 256
temperature = 0.5
top_p = 0.9

[context]
max_pairs = 4
max_tokens = 1024
enforce_limits = true

[eventstream]
kafka_brokers = "localhost:9092,localhost:9093"
kafka_topic = "turns"

[client]
api_target = "http://myhost:9000"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage).To(Equal(config.StorageConfig{
				Backend:     "postgres",
				SQLitePath:  "/tmp/chatmem.db",
				PostgresDSN: "postgres://localhost/chatmem",
				LibSQLURL:   "libsql://chatmem.turso.io",
			}))
			Expect(cfg.Server.Listen).To(Equal(":9000"))
			Expect(cfg.Generation).To(Equal(config.GenerationConfig{
				Provider:    "ollama",
				Target:      "http://localhost:11434",
				Model:       "llama3.2",
				APIKey:      "secret",
				MaxTokens:   256,
				Temperature: 0.5,
				TopP:        0.9,
			}))
			Expect(cfg.Context).To(Equal(config.ContextConfig{MaxPairs: 4, MaxTokens: 1024, EnforceLimits: true}))
			Expect(cfg.EventStream.KafkaBrokers).To(Equal("localhost:9092,localhost:9093"))
			Expect(cfg.EventStream.KafkaTopic).To(Equal("turns"))
			Expect(cfg.Client.APITarget).To(Equal("http://myhost:9000"))
		})

		It("fills in defaults for unset fields in a partial config", func() {
			data := `[generation]
provider = "openai"
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Generation.Provider).To(Equal("openai"))
			Expect(cfg.Generation.Target).To(Equal(defaults.Generation.Target))
			Expect(cfg.Generation.MaxTokens).To(Equal(defaults.Generation.MaxTokens))
			Expect(cfg.Storage.Backend).To(Equal(defaults.Storage.Backend))
			Expect(cfg.Server.Listen).To(Equal(defaults.Server.Listen))
			Expect(cfg.Context.MaxPairs).To(Equal(defaults.Context.MaxPairs))
			Expect(cfg.EventStream.KafkaTopic).To(Equal(defaults.EventStream.KafkaTopic))
			Expect(cfg.Client.APITarget).To(Equal(defaults.Client.APITarget))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not valid toml [[["), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(cfg).To(BeNil())
		})

		It("returns error for unsupported config version", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 99\n"), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
			Expect(cfg).To(BeNil())
		})
	})

	Describe("SaveConfig", func() {
		It("round trips every field", func() {
			cfg := config.NewDefaultConfig()
			cfg.Storage.SQLitePath = "/tmp/test.db"
			cfg.Generation.Model = "llama3"
			cfg.Context.EnforceLimits = true
			cfg.EventStream.KafkaBrokers = "kafka:9092"

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(cfg)).To(Succeed())
			Expect(filepath.Join(tmpDir, "config.toml")).To(BeAnExistingFile())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})
	})

	Describe("SetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets a string config key", func() {
			Expect(c.SetConfigValue("generation.provider", "ollama")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Generation.Provider).To(Equal("ollama"))
		})

		It("sets uint, float and bool config keys", func() {
			Expect(c.SetConfigValue("context.max_pairs", "6")).To(Succeed())
			Expect(c.SetConfigValue("generation.temperature", "0.2")).To(Succeed())
			Expect(c.SetConfigValue("context.enforce_limits", "true")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Context.MaxPairs).To(Equal(uint(6)))
			Expect(cfg.Generation.Temperature).To(Equal(0.2))
			Expect(cfg.Context.EnforceLimits).To(BeTrue())
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("generation.provider", "ollama")).To(Succeed())
			Expect(c.SetConfigValue("generation.model", "llama3.2")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Generation.Provider).To(Equal("ollama"))
			Expect(cfg.Generation.Model).To(Equal("llama3.2"))
		})

		It("returns error for unknown key", func() {
			err := c.SetConfigValue("nonexistent_key", "value")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		DescribeTable("rejects malformed values",
			func(key, value string) {
				err := c.SetConfigValue(key, value)
				Expect(err).To(MatchError(ContainSubstring("invalid value for " + key)))
			},
			Entry("uint", "context.max_pairs", "lots"),
			Entry("float", "generation.top_p", "high"),
			Entry("bool", "context.enforce_limits", "sometimes"),
		)
	})

	Describe("GetConfigValue", func() {
		It("returns default value when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("generation.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("llamacpp"))

			val, err = c.GetConfigValue("generation.max_tokens")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("512"))

			val, err = c.GetConfigValue("generation.top_p")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(Equal("0.95"))
		})

		It("returns empty string for key with no default", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			val, err := c.GetConfigValue("storage.sqlite_path")
			Expect(err).NotTo(HaveOccurred())
			Expect(val).To(BeEmpty())
		})

		It("returns error for unknown key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.GetConfigValue("proxy.upstream")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("returns every key once, in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys).To(HaveLen(19))
		Expect(keys[0]).To(Equal("storage.backend"))
		Expect(keys[len(keys)-1]).To(Equal("client.api_target"))
		Expect(keys).To(ContainElements("server.listen", "context.enforce_limits", "eventstream.kafka_brokers"))
	})

	It("agrees with IsValidConfigKey", func() {
		for _, k := range config.ValidConfigKeys() {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
		}
		Expect(config.IsValidConfigKey("")).To(BeFalse())
		Expect(config.IsValidConfigKey("listen")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	DescribeTable("points the generation section at a backend",
		func(name, provider, target string) {
			cfg, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Generation.Provider).To(Equal(provider))
			Expect(cfg.Generation.Target).To(Equal(target))
			Expect(cfg.Server.Listen).To(Equal(config.NewDefaultConfig().Server.Listen))
		},
		Entry("llamacpp", "llamacpp", "llamacpp", "http://localhost:8080"),
		Entry("ollama", "Ollama", "ollama", "http://localhost:11434"),
		Entry("openai", "OPENAI", "openai", "https://api.openai.com/v1"),
	)

	It("returns error for unknown preset", func() {
		cfg, err := config.PresetConfig("anthropic")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
		Expect(cfg).To(BeNil())
	})

	It("lists the preset names", func() {
		Expect(config.ValidPresetNames()).To(ConsistOf("llamacpp", "ollama", "openai"))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.FromViper(v)).To(Equal(config.NewDefaultConfig()))
	})

	It("reads config file values over defaults", func() {
		data := `[server]
listen = ":7000"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("server.listen")).To(Equal(":7000"))
		Expect(v.GetString("generation.provider")).To(Equal("llamacpp"))
	})

	It("env vars take precedence over config file values", func() {
		data := `[generation]
provider = "ollama"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("CHATMEM_GENERATION_PROVIDER", "openai")
		GinkgoT().Setenv("CHATMEM_GENERATION_API_KEY", "sk-test")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.FromViper(v)
		Expect(cfg.Generation.Provider).To(Equal("openai"))
		Expect(cfg.Generation.APIKey).To(Equal("sk-test"))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})
		Expect(v.GetString("server.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := `[server]
listen = ":5555"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.Flags, config.FlagListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagListen})
		Expect(v.GetString("server.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.FlagSet{}, []string{"nonexistent"})
		Expect(v.GetString("server.listen")).To(Equal(config.NewDefaultConfig().Server.Listen))
	})

	It("pulls name, shorthand, default and description from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)

		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("a"))
		Expect(f.Usage).To(Equal("chatmem API server URL"))
		Expect(f.DefValue).To(Equal(config.NewDefaultConfig().Client.APITarget))
	})

	It("registers persistent string flags inherited by subcommands", func() {
		root := &cobra.Command{Use: "root"}
		child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
		root.AddCommand(child)

		var target string
		config.AddPersistentStringFlag(root, config.Flags, config.FlagAPITarget, &target)

		root.SetArgs([]string{"child", "-a", "http://example.test:9000"})
		Expect(root.Execute()).To(Succeed())
		Expect(target).To(Equal("http://example.test:9000"))
		Expect(child.Flags().Lookup("api-target")).NotTo(BeNil())
	})

	It("registers uint and bool flags with their defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		var pairs uint
		var enforce bool
		config.AddUintFlag(cmd, config.Flags, config.FlagMaxPairs, &pairs)
		config.AddBoolFlag(cmd, config.Flags, config.FlagEnforceLimits, &enforce)

		Expect(cmd.Flags().Lookup("max-pairs").DefValue).To(Equal("10"))
		Expect(cmd.Flags().Lookup("enforce-limits").DefValue).To(Equal("false"))
	})
})
