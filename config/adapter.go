package config

import (
	"fmt"
	"text/template"

	validator "github.com/asaskevich/govalidator"
	"github.com/emoteev/prebid-server/macros"
)

type Adapter struct {
	// Endpoint is interpreted as a Golang Template. At runtime {{.Host}} is replaced with the
	// base URL of the environment the request resolved to (production, staging or development).
	Endpoint string `mapstructure:"endpoint"` // Required
	// UserSync holds the templates returned by /cookie_sync for this Bidder. They accept the
	// same {{.Host}} macro as the Endpoint, plus:
	//
	//   {{.GDPR}}        -- This will be replaced with the "gdpr" property sent to /cookie_sync
	//   {{.GDPRConsent}} -- This will be replaced with the "gdpr_consent" property sent to /cookie_sync
	//   {{.USPrivacy}}   -- This will be replaced with the "us_privacy" property sent to /cookie_sync
	//
	// For more info on templates, see: https://golang.org/pkg/text/template/
	UserSync AdapterUserSync `mapstructure:"usersync"`
	Disabled bool            `mapstructure:"disabled"`
	// ExtraAdapterInfo is a JSON object with bidder specific settings.
	ExtraAdapterInfo string `mapstructure:"extra_info"`
}

type AdapterUserSync struct {
	IframeURL string `mapstructure:"iframe_url"`
	ImageURL  string `mapstructure:"image_url"`
}

// validateAdapters validates adapter's endpoint and user sync URLs
func validateAdapters(adapterMap map[string]Adapter, errs configErrors) configErrors {
	for adapterName, adapter := range adapterMap {
		if !adapter.Disabled {
			// Verify that every adapter has a valid endpoint associated with it
			errs = validateAdapterEndpoint(adapter.Endpoint, adapterName, errs)

			// Verify that valid user_sync URLs are specified in the config
			errs = validateAdapterUserSyncURL(adapter.UserSync.IframeURL, adapterName, errs)
			errs = validateAdapterUserSyncURL(adapter.UserSync.ImageURL, adapterName, errs)
		}
	}
	return errs
}

const (
	dummyHost        string = "https://dummyhost.com"
	dummyGDPR        string = "0"
	dummyGDPRConsent string = "someGDPRConsentString"
	dummyCCPA        string = "1NYN"
)

// validateAdapterEndpoint makes sure that an adapter has a valid endpoint
// associated with it
func validateAdapterEndpoint(endpoint string, adapterName string, errs configErrors) configErrors {
	if endpoint == "" {
		return append(errs, fmt.Errorf("There's no default endpoint available for %s. Calls to this bidder/exchange will fail. "+
			"Please set adapters.%s.endpoint in your app config", adapterName, adapterName))
	}

	// Create endpoint template
	endpointTemplate, err := template.New("endpointTemplate").Parse(endpoint)
	if err != nil {
		return append(errs, fmt.Errorf("Invalid endpoint template: %s for adapter: %s. %v", endpoint, adapterName, err))
	}
	// Resolve macros (if any) in the endpoint URL
	resolvedEndpoint, err := macros.ResolveMacros(*endpointTemplate, macros.EndpointTemplateParams{Host: dummyHost})
	if err != nil {
		return append(errs, fmt.Errorf("Unable to resolve endpoint: %s for adapter: %s. %v", endpoint, adapterName, err))
	}
	// Validating using both IsURL and IsRequestURL because IsURL allows relative paths
	// whereas IsRequestURL requires absolute path but fails to check other valid URL
	// format constraints.
	//
	// For example: IsURL will allow "abcd.com" but IsRequestURL won't
	// IsRequestURL will allow "http://http://abcd.com" but IsURL won't
	if !validator.IsURL(resolvedEndpoint) || !validator.IsRequestURL(resolvedEndpoint) {
		errs = append(errs, fmt.Errorf("The endpoint: %s for %s is not a valid URL", resolvedEndpoint, adapterName))
	}
	return errs
}

// validateAdapterUserSyncURL validates an adapter's user sync URL if it is set
func validateAdapterUserSyncURL(userSyncURL string, adapterName string, errs configErrors) configErrors {
	if userSyncURL != "" {
		userSyncTemplate, err := template.New("userSyncTemplate").Parse(userSyncURL)
		if err != nil {
			return append(errs, fmt.Errorf("Invalid user sync URL template: %s for adapter: %s. %v", userSyncURL, adapterName, err))
		}
		dummyMacroValues := macros.UserSyncTemplateParams{
			Host:        dummyHost,
			GDPR:        dummyGDPR,
			GDPRConsent: dummyGDPRConsent,
			USPrivacy:   dummyCCPA,
		}
		resolvedUserSyncURL, err := macros.ResolveMacros(*userSyncTemplate, dummyMacroValues)
		if err != nil {
			return append(errs, fmt.Errorf("Unable to resolve user sync URL: %s for adapter: %s. %v", userSyncURL, adapterName, err))
		}
		if !validator.IsURL(resolvedUserSyncURL) || !validator.IsRequestURL(resolvedUserSyncURL) {
			errs = append(errs, fmt.Errorf("The user_sync URL: %s for %s is invalid", resolvedUserSyncURL, adapterName))
		}
	}
	return errs
}
