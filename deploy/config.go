package deploy

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ConfigFileName = "replit-deploy.json"

// requiredConfigKeys is the reference shape of replit-deploy.json. Only key
// presence is checked; value types are left to dispatch.
var requiredConfigKeys = []string{"endpoint"}

type Config struct {
	Endpoint any
}

// ConfigURL points at the config file at exactly the pushed commit.
func ConfigURL(host, slug, commitID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimSuffix(host, "/"), slug, commitID, ConfigFileName)
}

func ParseConfig(body []byte) (Config, error) {
	var value any

	if err := json.Unmarshal(body, &value); err != nil {
		return Config{}, InvalidConfig("Error parsing JSON")
	}

	return ValidateConfig(value)
}

func ValidateConfig(value any) (Config, error) {
	object, ok := value.(map[string]any)

	if !ok || object == nil {
		return Config{}, InvalidConfig("JSON is not an object")
	}

	for _, key := range requiredConfigKeys {
		if _, ok := object[key]; !ok {
			return Config{}, InvalidConfig(fmt.Sprintf("Missing %s", key))
		}
	}

	return Config{Endpoint: object["endpoint"]}, nil
}
