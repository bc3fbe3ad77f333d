package emoteev

import (
	"fmt"
	"text/template"

	"github.com/emoteev/prebid-server/config"
	"github.com/emoteev/prebid-server/macros"
	"github.com/emoteev/prebid-server/openrtb_ext"
	"github.com/emoteev/prebid-server/privacy"
	"github.com/emoteev/prebid-server/usersync"
)

type EmoteevSyncer struct {
	iframe    *template.Template
	image     *template.Template
	configEnv string
}

// NewEmoteevSyncer returns the syncer offering Emoteev's iframe and image syncs.
func NewEmoteevSyncer(cfg config.Adapter) (usersync.Usersyncer, error) {
	iframe, err := template.New("iframeSyncTemplate").Parse(cfg.UserSync.IframeURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse iframe sync url template: %v", err)
	}
	image, err := template.New("imageSyncTemplate").Parse(cfg.UserSync.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse image sync url template: %v", err)
	}
	info, err := parseExtraInfo(cfg.ExtraAdapterInfo)
	if err != nil {
		return nil, err
	}
	return &EmoteevSyncer{
		iframe:    iframe,
		image:     image,
		configEnv: info.Env,
	}, nil
}

func (s *EmoteevSyncer) FamilyName() string {
	return string(openrtb_ext.BidderEmoteev)
}

func (s *EmoteevSyncer) GetUsersyncInfo(privacyPolicies privacy.Policies, options usersync.SyncOptions) ([]*usersync.UsersyncInfo, error) {
	parameterEnv := urlParameters(options.PageURL).Get(syncEnvParameter)
	return s.getUserSyncs(options, parameterEnv, s.configEnv, macros.UserSyncTemplateParams{
		GDPR:        privacyPolicies.GDPR.Signal,
		GDPRConsent: privacyPolicies.GDPR.Consent,
		USPrivacy:   privacyPolicies.CCPA.Consent,
	})
}

// getUserSyncs returns the iframe sync first, then the image sync, each only if enabled.
func (s *EmoteevSyncer) getUserSyncs(options usersync.SyncOptions, parameterEnv, configEnv string, params macros.UserSyncTemplateParams) ([]*usersync.UsersyncInfo, error) {
	syncs := []*usersync.UsersyncInfo{}
	syncs, err := s.syncIframe(syncs, options.IframeEnabled, parameterEnv, configEnv, params)
	if err != nil {
		return nil, err
	}
	return s.syncPixel(syncs, options.PixelEnabled, parameterEnv, configEnv, params)
}

func (s *EmoteevSyncer) syncIframe(syncs []*usersync.UsersyncInfo, enabled bool, parameterEnv, configEnv string, params macros.UserSyncTemplateParams) ([]*usersync.UsersyncInfo, error) {
	if !enabled {
		return syncs, nil
	}
	syncURL, err := userSyncURL(s.iframe, resolveEnv(parameterEnv, configEnv), params)
	if err != nil {
		return nil, err
	}
	return append(syncs, &usersync.UsersyncInfo{URL: syncURL, Type: string(openrtb_ext.UserSyncIframe)}), nil
}

func (s *EmoteevSyncer) syncPixel(syncs []*usersync.UsersyncInfo, enabled bool, parameterEnv, configEnv string, params macros.UserSyncTemplateParams) ([]*usersync.UsersyncInfo, error) {
	if !enabled {
		return syncs, nil
	}
	syncURL, err := userSyncURL(s.image, resolveEnv(parameterEnv, configEnv), params)
	if err != nil {
		return nil, err
	}
	return append(syncs, &usersync.UsersyncInfo{URL: syncURL, Type: string(openrtb_ext.UserSyncImage)}), nil
}
