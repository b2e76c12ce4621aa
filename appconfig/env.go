package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "VR180_"

// LoadEnv reads the given dotenv files (missing files are skipped) into the
// process environment without overriding variables that are already set.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays VR180_* variables onto c using lookup (os.LookupEnv in
// production).
func ApplyEnv(c Config, lookup func(string) (string, bool)) (Config, error) {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, dst *float64) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			return
		}
		*dst = f
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			return
		}
		*dst = b
	}

	str("DB_PATH", &c.DBPath)
	str("WORKSPACE_DIR", &c.WorkspaceDir)
	str("OUTPUT_DIR", &c.OutputDir)
	str("LISTEN_ADDR", &c.ListenAddr)
	str("FFMPEG_PATH", &c.FFmpegPath)
	str("FFPROBE_PATH", &c.FFprobePath)
	integer("JOB_CONCURRENCY", &c.JobConcurrency)
	str("JWT_SECRET", &c.JWTSecret)

	integer("OUTPUT_WIDTH", &c.VR180.OutputWidth)
	integer("OUTPUT_HEIGHT", &c.VR180.OutputHeight)
	num("EYE_SEPARATION", &c.VR180.EyeSeparation)
	num("CONVERGENCE_DISTANCE", &c.VR180.ConvergenceDistance)
	num("MAX_DISPARITY", &c.VR180.MaxDisparity)
	num("FPS", &c.VR180.FrameSampleRateFPS)
	num("BARREL_K1", &c.VR180.BarrelK1)
	num("CHROMATIC_RED_SCALE", &c.VR180.ChromaticRedScale)
	num("CHROMATIC_BLUE_SCALE", &c.VR180.ChromaticBlueScale)
	integer("EDGE_BLEND_WIDTH", &c.VR180.EdgeBlendWidthPx)
	integer("WORKERS", &c.VR180.Workers)
	boolean("INCLUDE_AUDIO", &c.VR180.IncludeAudio)

	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_PREFIX", &c.S3.Prefix)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	boolean("S3_USE_PATH_STYLE", &c.S3.UsePathStyle)

	if firstErr != nil {
		return c, firstErr
	}
	return c, c.VR180.Validate()
}
