package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"docgen/internal/logging"
	sinkfile "docgen/sink/file"
	sinkkafka "docgen/sink/kafka"
	sourcekafka "docgen/source/kafka"
)

// EnvPrefix selects the environment variables merged over the config file,
// e.g. DOCGEN__KAFKA__SOURCE__GROUP_ID sets kafka.source.group_id.
const EnvPrefix = "DOCGEN__"

type Server struct {
	SchemaVersion string `koanf:"schema_version"`

	HTTPPort    int    `koanf:"http_port"`    // 0 disables the HTTP listener
	GRPCPort    int    `koanf:"grpc_port"`    // 0 disables the gRPC listener
	MetricsPort int    `koanf:"metrics_port"` // 0 disables /metrics
	Catalogue   string `koanf:"catalogue"`

	// CompileWorkers bounds parallel template compiles; GOMAXPROCS when 0.
	CompileWorkers int `koanf:"compile_workers"`
	// StreamHTTP streams HTTP responses as they are generated instead of
	// buffering them, which loses the ability to report late errors.
	StreamHTTP bool `koanf:"stream_http"`

	Log      logging.Options `koanf:"log"`
	Xsltproc struct {
		Path string `koanf:"path"`
	} `koanf:"xsltproc"`
	FOP struct {
		Path string `koanf:"path"`
	} `koanf:"fop"`

	Kafka struct {
		Source sourcekafka.Config `koanf:"source"`
		Sink   sinkkafka.Config   `koanf:"sink"`
	} `koanf:"kafka"`
	// FileSink receives kafka render requests when no kafka sink is
	// configured.
	FileSink sinkfile.Config `koanf:"file_sink"`
}

// KafkaEnabled reports whether render requests are consumed from kafka.
func (s *Server) KafkaEnabled() bool { return len(s.Kafka.Source.Brokers) > 0 }

// LoadServer merges the YAML file at path (optional, may be missing) with
// DOCGEN__ environment variables and applies defaults.
func LoadServer(path string) (Server, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Server{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Server{}, fmt.Errorf("server schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	envKey := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Server{}, err
	}

	var cfg Server
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (s *Server) applyDefaults() {
	if s.HTTPPort == 0 && s.GRPCPort == 0 {
		s.HTTPPort = 8080
	}
	if s.Catalogue == "" {
		s.Catalogue = "catalogue.yml"
	}
	if s.Xsltproc.Path == "" {
		s.Xsltproc.Path = "xsltproc"
	}
	if s.FOP.Path == "" {
		s.FOP.Path = "fop"
	}
	if s.KafkaEnabled() {
		s.Kafka.Source.Defaults()
	}
	if s.Kafka.Sink.Acks == 0 {
		s.Kafka.Sink.Acks = int16(-1) // WaitForAll
	}
}
