package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v3"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

// Document is the on-disk catalog. The JSON layout matches the historical
// config.json, so existing files keep working.
type Document struct {
	VoteBaseURL      string                `json:"voteBaseUrl,omitempty" yaml:"voteBaseUrl,omitempty" toml:"voteBaseUrl,omitempty"`
	VoteURLs         []domain.VoteURLEntry `json:"voteUrls" yaml:"voteUrls" toml:"voteUrls"`
	DefaultVoteURLID string                `json:"defaultVoteUrlId,omitempty" yaml:"defaultVoteUrlId,omitempty" toml:"defaultVoteUrlId,omitempty"`
}

type format struct {
	name      string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonFormat = format{
		name:      "json",
		marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
		unmarshal: json.Unmarshal,
	}
	yamlFormat = format{name: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	tomlFormat = format{name: "toml", marshal: toml.Marshal, unmarshal: toml.Unmarshal}
)

// formatFor picks the codec from the file extension.
func formatFor(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", "":
		return jsonFormat, nil
	case ".yaml", ".yml":
		return yamlFormat, nil
	case ".toml":
		return tomlFormat, nil
	default:
		return format{}, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
}
