package config

import (
	"fmt"
	"strconv"
	"strings"
)

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = trimList(strings.Split(v, ","))
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = n
		return nil
	}

	str("DATACHAT_MODEL", &c.Model)
	str("DATABASE_URL", &c.Database.URL)
	str("CHROMA_HOST", &c.VectorStore.Host)
	str("UPLOAD_DIR", &c.UploadDir)
	str("EMBEDDING_MODEL", &c.EmbeddingModel)
	str("HOST", &c.Host)
	str("DATACHAT_DATA_DIR", &c.DataDir)
	str("DATACHAT_LOG_FORMAT", &c.Log.Format)
	str("DATACHAT_LOG_LEVEL", &c.Log.Level)
	str("VECTOR_STORE_BACKEND", &c.VectorStore.Backend)
	str("CHECKPOINT_BACKEND", &c.Checkpoint.Backend)
	list("CORS_ORIGINS", &c.CORSOrigins)
	list("ALLOWED_FILE_TYPES", &c.AllowedFileTypes)

	for name, dst := range map[string]*int{
		"DATACHAT_TOP_K":   &c.Database.TopK,
		"CHROMA_PORT":      &c.VectorStore.Port,
		"MAX_FILE_SIZE_MB": &c.MaxFileSizeMB,
		"PORT":             &c.Port,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}
