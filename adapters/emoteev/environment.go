package emoteev

import (
	"encoding/json"
	"fmt"
	"net/url"
	"text/template"

	"github.com/emoteev/prebid-server/macros"
	"github.com/mxmCherry/openrtb"
)

const (
	adapterVersion = "1.35.0"

	productionURL  = "https://prebid.emoteev.com"
	stagingURL     = "https://prebid-staging.emoteev.com"
	developmentURL = "http://localhost:3000"

	production  = "production"
	staging     = "staging"
	development = "development"
	defaultEnv  = production

	envParameter       = "emoteevEnv"
	debugParameter     = "emoteevDebug"
	overridesParameter = "emoteevOverrides"
	syncEnvParameter   = "emoteev.env"
)

var falseJSON = json.RawMessage(`false`)

// extraInfo is the adapters.emoteev.extra_info host setting.
type extraInfo struct {
	Env       string                     `json:"env"`
	Debug     bool                       `json:"debug"`
	Overrides map[string]json.RawMessage `json:"overrides"`
}

func parseExtraInfo(raw string) (extraInfo, error) {
	var info extraInfo
	if raw == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return info, fmt.Errorf("invalid extra_info for emoteev: %v", err)
	}
	return info, nil
}

func isKnownEnv(env string) bool {
	return env == production || env == staging || env == development
}

// resolveEnv returns the first known environment name out of the call parameter and the
// host configuration, or production.
func resolveEnv(parameterEnv, configEnv string) string {
	if isKnownEnv(parameterEnv) {
		return parameterEnv
	}
	if isKnownEnv(configEnv) {
		return configEnv
	}
	return defaultEnv
}

// resolveDebug returns the debug value sent to Emoteev. A parameter is passed through as
// parsed JSON, whatever its type.
func resolveDebug(parameterDebug string, configDebug bool) json.RawMessage {
	if parameterDebug != "" && json.Valid([]byte(parameterDebug)) {
		return json.RawMessage(parameterDebug)
	}
	if configDebug {
		return json.RawMessage(`true`)
	}
	return falseJSON
}

// resolveOverrides returns the fields merged over the payload. Malformed parameters are ignored.
func resolveOverrides(parameterOverrides string, configOverrides map[string]json.RawMessage) map[string]json.RawMessage {
	if parameterOverrides != "" {
		if parsed, ok := parseOverrides(parameterOverrides); ok {
			return parsed
		}
	}
	if len(configOverrides) != 0 {
		return configOverrides
	}
	return map[string]json.RawMessage{}
}

// parseOverrides reports ok for any JSON value other than null, false, 0 and "".
// Only objects contribute fields.
func parseOverrides(raw string) (map[string]json.RawMessage, bool) {
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false
	}
	switch v := value.(type) {
	case nil:
		return nil, false
	case bool:
		if !v {
			return nil, false
		}
	case float64:
		if v == 0 {
			return nil, false
		}
	case string:
		if v == "" {
			return nil, false
		}
	case map[string]interface{}:
		fields := make(map[string]json.RawMessage, len(v))
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, false
		}
		return fields, true
	}
	return map[string]json.RawMessage{}, true
}

// emoteevURL maps an environment name to its base URL.
func emoteevURL(env string) string {
	switch env {
	case development:
		return developmentURL
	case staging:
		return stagingURL
	default:
		return productionURL
	}
}

func endpointURL(tmpl *template.Template, env string) (string, error) {
	return macros.ResolveMacros(*tmpl, macros.EndpointTemplateParams{Host: emoteevURL(env)})
}

func userSyncURL(tmpl *template.Template, env string, params macros.UserSyncTemplateParams) (string, error) {
	params.Host = emoteevURL(env)
	return macros.ResolveMacros(*tmpl, params)
}

// pageParameters returns the query string of the page the auction runs on.
func pageParameters(request *openrtb.BidRequest) url.Values {
	if request.Site == nil {
		return url.Values{}
	}
	return urlParameters(request.Site.Page)
}

func urlParameters(rawURL string) url.Values {
	if rawURL == "" {
		return url.Values{}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return url.Values{}
	}
	return parsed.Query()
}
