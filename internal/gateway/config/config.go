package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"urbansim/internal/job"
)

type Config struct {
	Port     string
	Env      string
	Postgres PostgresConfig
	LLM      LLMConfig
	Impact   job.Coefficients
	Artifact ArtifactConfig
}

type PostgresConfig struct {
	// DSN enables postgres-backed job, project, and event-log stores.
	// Empty DSN selects the in-memory stores.
	DSN string
}

type LLMConfig struct {
	APIKey string
	Model  string
	// Fake swaps the Gemini client for the scripted generator; used in local
	// runs without an API key.
	Fake bool
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	return &Config{
		Port: *port,
		Env:  env,
		Postgres: PostgresConfig{
			DSN: strings.TrimSpace(os.Getenv("JOB_STORE_PG_DSN")),
		},
		LLM: LLMConfig{
			APIKey: apiKey,
			Model:  firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_MODEL")), "gemini-2.5-flash"),
			Fake:   apiKey == "" || parseBool(os.Getenv("LLM_FAKE"), false),
		},
		Impact:   loadImpactCoefficients(),
		Artifact: loadArtifactConfig(env),
	}, nil
}

// loadImpactCoefficients reads the policy-adjustment multipliers, falling back
// to the shipped defaults per field.
func loadImpactCoefficients() job.Coefficients {
	c := job.DefaultCoefficients()
	c.ZoningHousing = parseFloat(os.Getenv("IMPACT_ZONING_HOUSING"), c.ZoningHousing)
	c.TransitUsage = parseFloat(os.Getenv("IMPACT_TRANSIT_USAGE"), c.TransitUsage)
	c.TransitAir = parseFloat(os.Getenv("IMPACT_TRANSIT_AIR"), c.TransitAir)
	c.EnvironmentalAir = parseFloat(os.Getenv("IMPACT_ENVIRONMENTAL_AIR"), c.EnvironmentalAir)
	return c
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "urbansim-reports"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	return parseBool(os.Getenv("ARTIFACT_S3_USE_SSL"), true)
}

func parseFloat(raw string, fallback float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseBool(raw string, fallback bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
